package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/ashureev/rizzcoach/internal/domain"
)

const systemInstruction = `
你是一位專業社交溝通教練與聊天助手，擅長透過「自然感」與「故事架構」與異性建立深度連結。

### Core Framework (核心架構)
回覆必須包含：【關鍵字】+【個人故事/想法/情緒分享】+【經過設計的問句】

### Constraints (原則限制)
1. **拒絕套路感**：口語化、自然，絕對不要像機器人或背台詞。
2. **節奏控制**：訊息簡潔，一串話題控制在 2-3 句內，嚴禁長篇大論。
3. **創造 Hook**：擷取故事中的「非常態資訊」（反直覺、有趣、引人好奇點）並放大。
4. **情緒張力**：使用具體的形容詞與適度的誇飾，增加畫面感與情緒起伏。
5. **不聊到底**：適度保留懸念。

### Output Styles (回覆風格)
請提供三個回覆，分別對應以下風格（可根據對話情境微調）：
- **風格 A (輕鬆幽默)**：用於破冰或緩解氣氛，帶點調皮或趣味。
- **風格 B (深度共鳴)**：展現同理心，針對對方內容分享獨特觀點。
- **風格 C (引導提問)**：延伸話題，利用好奇心讓對方想接話。

請務必以**繁體中文 (Traditional Chinese)** 輸出。
`

const profilePromptTemplate = `這是對方的個人資料截圖，請幫我：
1. 建立她的基本檔案 (包含姓名推測)。
2. 分析她的興趣和性格。
3. **重要**：根據她的檔案，提供 3 個適合作為「第一句開場白」的建議。
   這些開場白必須嚴格遵守 System Instruction 中的 Core Framework (關鍵字+故事/情緒+問句) 和 Constraints (拒絕套路)。`

func profilePrompt(note string) string {
	var b strings.Builder
	b.WriteString(profilePromptTemplate)
	if note = strings.TrimSpace(note); note != "" {
		b.WriteString("\n\n使用者補充備註: ")
		b.WriteString(note)
	}
	return b.String()
}

func chatPrompt(profile *domain.ProfileRecord, note string, hasImage bool) (string, error) {
	context, err := json.Marshal(profile)
	if err != nil {
		return "", fmt.Errorf("marshal profile context: %w", err)
	}

	var b strings.Builder
	b.WriteString("這是我們目前的對話進度。\n\n目標對象檔案: ")
	b.Write(context)
	b.WriteString("\n\n")
	if note = strings.TrimSpace(note); note != "" {
		b.WriteString("使用者對於目前狀況的想法/備註(或文字描述的對話內容): ")
		b.WriteString(note)
		b.WriteString("\n\n")
	}
	source := "使用者提供的備註描述"
	if hasImage {
		source = "圖片中的對話內容"
	}
	fmt.Fprintf(&b, "請根據%s，分析對方的意圖，並提供三個不同風格的回覆建議。\n", source)
	b.WriteString("請嚴格遵循 System Instruction 中的 Output Styles (風格 A, B, C) 提供建議。\n")
	b.WriteString("務必遵循核心架構：關鍵字 + 故事/情緒 + 問句。")
	return b.String(), nil
}

func suggestionSchema(contentDesc, explanationDesc string) *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"style":       {Type: genai.TypeString, Description: "e.g., 風格 A (輕鬆幽默)"},
			"content":     {Type: genai.TypeString, Description: contentDesc},
			"explanation": {Type: genai.TypeString, Description: explanationDesc},
		},
		Required: []string{"style", "content", "explanation"},
	}
}

var profileSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"basicInfo": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"name":          {Type: genai.TypeString, Description: "Inferred name of the person from the bio/image. If unknown, leave empty."},
				"age":           {Type: genai.TypeString},
				"occupation":    {Type: genai.TypeString},
				"constellation": {Type: genai.TypeString},
				"location":      {Type: genai.TypeString},
			},
		},
		"interests":         {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"personalityTraits": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"summary":           {Type: genai.TypeString, Description: "A brief summary of the target persona"},
		"openingLines": {
			Type:        genai.TypeArray,
			Description: "Three opening lines to start a conversation with this specific profile.",
			Items:       suggestionSchema("The actual opening line text.", "Why this opener works for this specific profile."),
		},
	},
	Required: []string{"basicInfo", "interests", "personalityTraits", "summary", "openingLines"},
}

var chatSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"situationAnalysis": {Type: genai.TypeString, Description: "Analysis of the current conversation mood and the user's last message intent."},
		"suggestions": {
			Type:  genai.TypeArray,
			Items: suggestionSchema("The actual suggested reply text.", "Why this reply works."),
		},
		"coachTip": {Type: genai.TypeString, Description: "Final advice on future direction."},
	},
	Required: []string{"situationAnalysis", "suggestions", "coachTip"},
}
