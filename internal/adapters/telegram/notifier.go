package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/selivandex/stock-signal/internal/adapters/config"
	"github.com/selivandex/stock-signal/internal/training"
	"github.com/selivandex/stock-signal/pkg/logger"
)

const topFeatures = 5

// sender is the part of the bot API the notifier uses
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier sends training reports to a Telegram chat; implements training.Notifier
type Notifier struct {
	api             sender
	chatID          int64
	templateManager *TemplateManager
}

// NewNotifier creates new Telegram notifier
func NewNotifier(cfg *config.TelegramConfig, templateManager *TemplateManager) (*Notifier, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}
	bot.Debug = false

	logger.Info("telegram notifier initialized",
		zap.String("bot_username", bot.Self.UserName),
		zap.Int64("chat_id", cfg.ChatID),
	)

	return newNotifier(bot, cfg.ChatID, templateManager), nil
}

func newNotifier(api sender, chatID int64, templateManager *TemplateManager) *Notifier {
	return &Notifier{api: api, chatID: chatID, templateManager: templateManager}
}

type reportData struct {
	Params        string
	TrainAccuracy float64
	TestAccuracy  float64
	CVMean        float64
	CVStd         float64
	TrainSize     int
	TestSize      int
	Classes       []training.ClassMetrics
	Top           []training.FeatureImportance
}

// NotifyTraining sends the summary of a finished run
func (n *Notifier) NotifyTraining(ctx context.Context, res *training.Result) error {
	data := reportData{
		Params:        res.BestParams.String(),
		TrainAccuracy: res.TrainAccuracy,
		TestAccuracy:  res.TestAccuracy,
		CVMean:        res.DiagnosticMean,
		CVStd:         res.DiagnosticStd,
		TrainSize:     res.TrainSize,
		TestSize:      res.TestSize,
		Top:           res.Importance,
	}
	if res.Report != nil {
		data.Classes = res.Report.Classes
	}
	if len(data.Top) > topFeatures {
		data.Top = data.Top[:topFeatures]
	}

	msg, err := n.templateManager.ExecuteTemplate(TrainingReportTemplate, data)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return n.sendMessageMarkdown(n.chatID, msg)
}

func (n *Notifier) sendMessageMarkdown(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"

	_, err := n.api.Send(msg)
	if err != nil {
		logger.Error("failed to send telegram message",
			zap.Int64("chat_id", chatID),
			zap.Error(err),
		)
		return err
	}

	return nil
}
