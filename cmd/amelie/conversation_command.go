package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nunotfc/amelie/internal/convconfig"
)

func newConversationCommand(ctx *commandContext) *cobra.Command {
	convCmd := &cobra.Command{
		Use:   "conversation",
		Short: "Per-conversation settings",
	}

	convCmd.AddCommand(newConversationShowCommand(ctx))
	convCmd.AddCommand(newConversationModeCommand(ctx))
	convCmd.AddCommand(newConversationMediaCommand(ctx))
	return convCmd
}

func (c *commandContext) withSettings(fn func(*convconfig.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := convconfig.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func newConversationShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Show effective settings for a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSettings(func(store *convconfig.Store) error {
				settings, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Conversation:  %s\n", settings.ConversationID)
				fmt.Fprintf(out, "Mode:          %s\n", settings.Mode)
				fmt.Fprintf(out, "Images:        %s\n", yesNo(settings.ImageEnabled))
				fmt.Fprintf(out, "Videos:        %s\n", yesNo(settings.VideoEnabled))
				return nil
			})
		},
	}
}

func newConversationModeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "mode <conversation-id> <long|short>",
		Short: "Set the description verbosity for a conversation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, ok := convconfig.ParseMode(args[1])
			if !ok {
				return fmt.Errorf("unknown mode %q (expected long or short)", args[1])
			}
			return ctx.withSettings(func(store *convconfig.Store) error {
				if err := store.SetMode(cmd.Context(), args[0], mode); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Mode for %s set to %s\n", args[0], mode)
				return nil
			})
		},
	}
}

func newConversationMediaCommand(ctx *commandContext) *cobra.Command {
	var disable bool

	cmd := &cobra.Command{
		Use:   "media <conversation-id> <image|video>",
		Short: "Enable or disable a media kind for a conversation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := args[1]
			if kind != "image" && kind != "video" {
				return fmt.Errorf("unknown media kind %q (expected image or video)", kind)
			}
			return ctx.withSettings(func(store *convconfig.Store) error {
				if err := store.SetMediaEnabled(cmd.Context(), args[0], kind, !disable); err != nil {
					return err
				}
				state := "enabled"
				if disable {
					state = "disabled"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s descriptions %s for %s\n", kind, state, args[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&disable, "disable", false, "Disable instead of enable")
	return cmd
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
