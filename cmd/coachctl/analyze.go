package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ashureev/rizzcoach/internal/analysis"
	"github.com/ashureev/rizzcoach/internal/capture"
)

func newProfileCmd(d deps, g *globalFlags) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "profile IMAGE",
		Short: "Analyze a dating profile screenshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := capture.FromFile(args[0], g.maxBytes)
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()

			client, err := g.client(ctx, d, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			profile, err := client.AnalyzeProfile(ctx, analysis.ProfileRequest{
				Image:    img.Payload,
				MIMEType: img.MIMEType,
				Note:     note,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), profile)
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "extra context for the analysis")
	return cmd
}

func newChatCmd(d deps, g *globalFlags) *cobra.Command {
	var (
		note        string
		profilePath string
	)
	cmd := &cobra.Command{
		Use:   "chat [IMAGE]",
		Short: "Get reply advice for a chat screenshot or a text note",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(profilePath)
			if err != nil {
				return fmt.Errorf("read profile: %w", err)
			}
			profile, err := analysis.DecodeProfile(raw)
			if err != nil {
				return fmt.Errorf("profile %s: %w", profilePath, err)
			}

			req := analysis.ChatRequest{ProfileContext: profile, Note: note}
			if len(args) == 1 {
				img, err := capture.FromFile(args[0], g.maxBytes)
				if err != nil {
					return fmt.Errorf("read %s: %w", args[0], err)
				}
				req.Image = &img.Payload
				req.MIMEType = img.MIMEType
			}
			if err := req.Validate(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()

			client, err := g.client(ctx, d, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			advice, err := client.AnalyzeChat(ctx, req)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), advice)
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "text describing the conversation, or extra context")
	cmd.Flags().StringVar(&profilePath, "profile", "", "JSON file holding a previous profile analysis")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}
