package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/slack-go/slack"
)

func main() {
	cfg := LoadConfig()

	release, err := acquireLock(cfg.LockFile)
	if err != nil {
		log.Fatalf("Startup error: %v", err)
	}
	defer release()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		s := <-sigs
		log.Printf("Received signal %v, shutting down", s)
		release()
		os.Exit(0)
	}()

	db, err := InitDB(cfg.DBPath)
	if err != nil {
		release()
		log.Fatalf("Database init error: %v", err)
	}
	defer db.Close()

	for _, admin := range cfg.Admins {
		if err := AddAdmin(db, admin); err != nil {
			log.Printf("admin seed error id=%s: %v", admin, err)
		}
	}

	api := slack.New(
		cfg.SlackBotToken,
		slack.OptionAppLevelToken(cfg.SlackAppToken),
	)
	notifier := NewSlackNotifier(api)

	StartReminderScheduler(cfg, db, notifier)

	log.Println("Starting Support Bot...")
	if err := StartSlackBot(cfg, db, api, notifier); err != nil {
		release()
		log.Fatalf("Slack bot error: %v", err)
	}
}

// acquireLock guards against a second bot instance polling the same
// workspace. The returned release func is safe to call more than once.
func acquireLock(path string) (func(), error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("lock file %s exists, another instance appears to be running", path)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return nil, fmt.Errorf("create lock file: %w", err)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			if err := os.Remove(path); err != nil {
				log.Printf("lock file remove error: %v", err)
			}
		})
	}, nil
}
