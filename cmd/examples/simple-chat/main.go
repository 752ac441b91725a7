package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/RedHatInsights/ai-web-clients-sub001/pkg/client"
	"github.com/RedHatInsights/ai-web-clients-sub001/pkg/clients/lightspeed"
	"github.com/RedHatInsights/ai-web-clients-sub001/pkg/events"
	"github.com/RedHatInsights/ai-web-clients-sub001/pkg/state"
)

const stateTopic = "chat.state"

var rootCmd = &cobra.Command{
	Use:   "simple-chat",
	Short: "Interactive chat against a lightspeed-style gateway",
	RunE:  runChat,
}

func init() {
	rootCmd.Flags().String("base-url", "http://localhost:8080", "Gateway base URL")
	rootCmd.Flags().String("token", "", "Bearer token")
	rootCmd.Flags().Bool("stream", true, "Request streaming answers")
	rootCmd.Flags().Bool("verbose", false, "Verbose logging")

	_ = viper.BindPFlags(rootCmd.Flags())
	viper.SetEnvPrefix("SIMPLE_CHAT")
	viper.AutomaticEnv()
}

func runChat(cmd *cobra.Command, args []string) error {
	verbose := viper.GetBool("verbose")
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}

	aiClient := lightspeed.NewClient(
		viper.GetString("base-url"),
		lightspeed.WithToken(viper.GetString("token")),
	)

	bus := events.NewBus()
	router, err := events.NewEventRouter(events.WithVerbose(verbose))
	if err != nil {
		return err
	}
	defer func() {
		_ = router.Close()
	}()

	publisherManager := events.NewPublisherManager()
	publisherManager.SubscribePublisher(stateTopic, router.Publisher)
	unbridge := events.BridgeBus(bus, publisherManager)
	defer unbridge()

	router.AddHandler("state-logger", stateTopic, func(msg *message.Message) error {
		log.Debug().
			Str("sequence_number", msg.Metadata.Get("sequence_number")).
			RawJSON("payload", msg.Payload).
			Msg("state change")
		return nil
	})

	manager := state.NewManager(aiClient, state.WithBus(bus))

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return router.Run(egCtx)
	})
	eg.Go(func() error {
		defer cancel()
		<-router.Running()
		return chatLoop(egCtx, manager, viper.GetBool("stream"))
	})

	return eg.Wait()
}

func chatLoop(ctx context.Context, manager state.Manager, stream bool) error {
	if err := manager.Init(ctx); err != nil {
		// the manager attached the error to a conversation, keep going
		log.Warn().Err(err).Msg("initialization failed, continuing in degraded mode")
	}
	if limitation := manager.GetInitLimitation(); limitation != nil {
		fmt.Printf("note: %s\n", limitation.Reason)
	}

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		query := strings.TrimSpace(scanner.Text())
		switch query {
		case "":
			fmt.Print("> ")
			continue
		case "/quit":
			return nil
		case "/new":
			if _, err := manager.CreateNewConversation(ctx, true); err != nil {
				fmt.Printf("error: %v\n", err)
			}
			fmt.Print("> ")
			continue
		}

		printed := 0
		resp, err := manager.SendMessage(ctx, query, &client.SendOptions{
			Stream: stream,
			AfterChunk: func(chunk *client.MessageResponse) {
				fmt.Print(chunk.Answer[printed:])
				printed = len(chunk.Answer)
			},
		})
		if err != nil {
			fmt.Printf("error: %v\n", err)
		} else if resp != nil && len(resp.Answer) > printed {
			fmt.Print(resp.Answer[printed:])
		}
		fmt.Print("\n> ")
	}
	return scanner.Err()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
