package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xenonwellz/autoplybot/internal/bot"
	"github.com/xenonwellz/autoplybot/internal/extract"
	"github.com/xenonwellz/autoplybot/internal/history"
	"github.com/xenonwellz/autoplybot/internal/logger"
	"github.com/xenonwellz/autoplybot/internal/mail"
	"github.com/xenonwellz/autoplybot/internal/pending"
	"github.com/xenonwellz/autoplybot/internal/store"
)

const (
	PromptSend   = "Send"
	PromptCancel = "Cancel"

	chatUserID = "local"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the bot locally without telegram; emails are printed, not sent",
	Run: func(cmd *cobra.Command, _ []string) {
		chat(cmd)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().String("cv", "", "path to a CV file (.pdf, .doc or .docx)")
}

// chat runs a terminal conversation loop against in-memory state. It only
// needs the gemini part of the config.
func chat(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	router, composer, err := buildAI(ctx, configAI(config), logger)
	if err != nil {
		logger.Fatal("building ai stages", zap.Error(err))
	}

	users := &chatUsers{user: &store.User{ID: chatUserID, FirstName: "Local", LastName: "User"}}
	cvText := loadChatCV(cmd, logger)

	b := bot.New(bot.Config{
		History:  history.NewMemory(),
		Router:   router,
		Composer: composer,
		Pending:  pending.NewMemory(),
		Users:    users,
		Objects:  nil,
		Mailer:   &printDispatcher{},
		Logger:   logger,
	})

	fmt.Println("Chatting with the bot. Press Ctrl+D to exit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		res := b.Turn(ctx, chatUserID, text, cvText)
		fmt.Println(res.Response)

		if !res.ConfirmationRequested || res.Draft == nil {
			continue
		}

		fmt.Printf("\n--- EMAIL PREVIEW ---\nTo: %s\nSubject: %s\n\n%s\n\n",
			res.Draft.RecipientEmail, res.Draft.Subject, res.Draft.Body)

		prompt := promptui.Select{
			Label: "Send this email?",
			Items: []string{PromptSend, PromptCancel},
		}
		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		switch action {
		case PromptSend:
			fmt.Println(b.Confirm(ctx, chatUserID))
		case PromptCancel:
			fmt.Println(b.Cancel(ctx, chatUserID))
		}
	}
}

func configAI(config *Config) *AIConfig {
	if config == nil {
		return nil
	}
	return config.AI
}

func loadChatCV(cmd *cobra.Command, logger *zap.Logger) string {
	path := cmd.Flag("cv").Value.String()
	if path == "" {
		return ""
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Fatal("reading cv file", zap.Error(err))
	}
	mediaType := mediaTypeForPath(path)
	if mediaType == "" {
		logger.Fatal("unsupported cv file extension", zap.String("path", path))
	}

	text, err := extract.New(logger).Extract(data, mediaType)
	if err != nil {
		logger.Fatal("extracting cv text", zap.Error(err))
	}

	logger.Info("loaded cv", zap.String("path", path), zap.Int("characters", len(text)))
	return text
}

func mediaTypeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return extract.MediaTypePDF
	case ".doc":
		return extract.MediaTypeDOC
	case ".docx":
		return extract.MediaTypeDOCX
	default:
		return ""
	}
}

// chatUsers is the single-user directory backing the local session.
type chatUsers struct {
	user *store.User
}

func (u *chatUsers) GetUser(_ context.Context, _ string) (*store.User, error) {
	if u.user == nil {
		return nil, errors.New("no local user")
	}
	return u.user, nil
}

func (u *chatUsers) SaveApplication(_ context.Context, _ store.Application) error {
	return nil
}

// printDispatcher writes the email to stdout instead of sending it.
type printDispatcher struct{}

func (d *printDispatcher) Send(_ context.Context, _ string, msg mail.Message) (string, error) {
	fmt.Printf("\n--- EMAIL (dry run) ---\nFrom: %s\nTo: %s\nSubject: %s\n\n%s\n\n",
		msg.From, msg.To, msg.Subject, msg.Body)
	return "dry-run", nil
}
