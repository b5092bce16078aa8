// Command notifier consumes booking events, appends them to the booking
// journal and sends the customer notifications.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/court-slot-booking/internal/config"
	"github.com/iliyamo/court-slot-booking/internal/logger"
	"github.com/iliyamo/court-slot-booking/internal/notify"
	"github.com/iliyamo/court-slot-booking/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logger.New(logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	journal := logger.RotatingFile(cfg.Log.Journal, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups, cfg.Log.MaxAgeDays)
	defer journal.Close()

	var n notify.Notifier = notify.LogNotifier{Log: log}
	if cfg.Mail.SMTPHost != "" {
		n = notify.NewMailNotifier(notify.MailConfig{
			Host:     cfg.Mail.SMTPHost,
			Port:     cfg.Mail.SMTPPort,
			Username: cfg.Mail.SMTPUser,
			Password: cfg.Mail.SMTPPass,
			From:     cfg.Mail.From,
		}, log)
	} else {
		log.Info("SMTP_HOST not set; notifications are logged only")
	}

	h := queue.NewNotificationHandler(n, journal, log)
	log.WithField("queue", cfg.AMQP.NotifyQueue).Info("notifier started")
	err = queue.Consume(ctx, queue.ConsumerConfig{
		URL:      cfg.AMQP.URL,
		Exchange: cfg.AMQP.Exchange,
		Queue:    cfg.AMQP.NotifyQueue,
		Keys:     queue.BookingKeys,
		Prefetch: cfg.AMQP.Prefetch,
		Name:     "notifier",
	}, h.Handle, log)
	if err != nil {
		log.WithError(err).Fatal("notifier stopped")
	}
	log.Info("notifier stopped")
}
