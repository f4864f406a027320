package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/contesthub/contesthub/internal/chat"
	"github.com/contesthub/contesthub/internal/presence"
	"github.com/contesthub/contesthub/internal/session"
	"github.com/contesthub/contesthub/internal/ws"
)

var (
	tailServer string
	tailToken  string
)

var tailCmd = &cobra.Command{
	Use:   "tail <contest-id>",
	Short: "Follow a contest room and print its messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		contestID := args[0]
		if tailToken == "" {
			tailToken = os.Getenv("CONTESTHUB_TOKEN")
		}
		if tailToken == "" {
			return fmt.Errorf("an identity token is required (--token or CONTESTHUB_TOKEN)")
		}

		apiURL := tailServer
		wsURL := strings.Replace(tailServer, "http", "ws", 1) + "/ws"

		printMessage := func(msg chat.MessageEvent) {
			fmt.Printf("[%s] %s: %s\n", msg.Timestamp.Format("15:04:05"), msg.Username, msg.Message)
		}

		client := session.New(session.Config{
			WSURL:  wsURL,
			APIURL: apiURL,
			Token:  tailToken,
		}, session.Callbacks{
			OnState: func(state session.State) {
				fmt.Printf("-- %s --\n", state)
			},
			OnMessage: printMessage,
			OnTyping: func(p presence.TypingPayload) {
				fmt.Printf("-- %s is typing --\n", p.Username)
			},
			OnRoomCount: func(p chat.RoomCountPayload) {
				fmt.Printf("-- %d in room --\n", p.Count)
			},
			OnError: func(p ws.ErrorPayload) {
				fmt.Printf("-- error %s: %s --\n", p.Code, p.Message)
			},
			OnResync: func(_ string, history []chat.MessageEvent) {
				for _, msg := range history {
					printMessage(msg)
				}
			},
		})

		ctx := context.Background()
		if err := client.Connect(ctx); err != nil {
			return err
		}
		defer client.Close()

		if err := client.Join(ctx, contestID); err != nil {
			return err
		}
		history, err := client.FetchHistory(ctx, contestID, 20)
		if err != nil {
			return err
		}
		for _, msg := range history {
			printMessage(msg)
		}

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		return nil
	},
}

func init() {
	tailCmd.Flags().StringVar(&tailServer, "server", "http://localhost:8080", "Server base URL")
	tailCmd.Flags().StringVar(&tailToken, "token", "", "Identity token (defaults to CONTESTHUB_TOKEN)")
	rootCmd.AddCommand(tailCmd)
}
