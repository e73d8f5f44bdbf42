package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cartpilot/cartpilot/config"
	"github.com/cartpilot/cartpilot/internal/agent/core"
	"github.com/cartpilot/cartpilot/internal/agent/telemetry"
	"github.com/cartpilot/cartpilot/internal/tools"
	openai "github.com/cartpilot/cartpilot/provider/openai"
)

func chatCMD() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive shopping chat in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			return runChat(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default ./config.yaml)")
	return cmd
}

func runChat(ctx context.Context, cfg *config.Config) error {
	provider, err := openai.New(cfg.LLM)
	if err != nil {
		return err
	}
	registry, err := tools.DefaultRegistry(cfg)
	if err != nil {
		return err
	}
	orch := core.NewOrchestrator(cfg, provider, registry, telemetry.New())

	// One terminal, one session, one conversation.
	sess := core.NewSession("terminal")
	var history []core.Message

	fmt.Println("cartpilot ready. Type your request, or \"exit\" to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		result, err := orch.HandleTurn(ctx, sess, line, history)
		if err != nil {
			// Primary model unreachable: log and exit rather than limp
			// along with a corrupted turn.
			return fmt.Errorf("turn failed: %w", err)
		}

		fmt.Println(result.Reply)
		printOptions(result.Options)

		history = append(history,
			core.Message{Role: core.RoleUser, Content: line},
			core.Message{Role: core.RoleAssistant, Content: result.Reply},
		)
	}
}

func printOptions(options []core.Option) {
	if len(options) == 0 {
		return
	}
	fmt.Println()
	for _, opt := range options {
		price := opt.Price
		if price == "" {
			price = "n/a"
		} else if opt.Currency != "" {
			price += " " + opt.Currency
		}
		fmt.Printf("  [%d] %s  (%s", opt.OptionIndex, opt.Title, price)
		if opt.Seller != "" {
			fmt.Printf(", %s", opt.Seller)
		}
		fmt.Println(")")
		for _, b := range opt.Bullets {
			fmt.Printf("      - %s\n", b)
		}
	}
	fmt.Println()
}
