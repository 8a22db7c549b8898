package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rf-checker/rf-checker-go/internal/config"
	"github.com/rf-checker/rf-checker-go/internal/queue"
	"github.com/rf-checker/rf-checker-go/internal/retry"
	"github.com/rf-checker/rf-checker-go/internal/service"
)

// Publishes URL check jobs to RabbitMQ. With -batch every URL becomes its
// own job, otherwise all URLs form one check.
func main() {
	configPath := flag.String("config", "./configs/config.yaml", "path to the YAML config file")
	game := flag.String("game", "", "Steam game name")
	file := flag.String("file", "", "read URLs from a file, one per line (- for stdin)")
	batch := flag.Bool("batch", false, "publish one job per URL")
	purge := flag.Bool("purge", false, "drop pending jobs before publishing")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := config.InitLogger(&cfg.Log)

	urls := flag.Args()
	if *file != "" {
		fromFile, err := readURLs(*file)
		if err != nil {
			logger.Fatalf("Failed to read %s: %v", *file, err)
		}
		urls = append(urls, fromFile...)
	}
	if len(urls) == 0 && *game == "" {
		logger.Fatal("Nothing to enqueue: pass URLs, -file or -game")
	}

	mq, err := queue.NewRabbitMQ(cfg.RabbitMQ, retry.FromConfig(&cfg.Retry, logger, nil), logger)
	if err != nil {
		logger.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer mq.Close()

	if *purge {
		if _, err := mq.PurgeQueue(); err != nil {
			logger.WithError(err).Warn("Failed to purge queue")
		}
	}

	producer := queue.NewProducer(mq, logger)
	ctx := context.Background()

	var messages []*queue.CheckMessage
	if *batch {
		for _, u := range urls {
			messages = append(messages, &queue.CheckMessage{URLs: []string{u}, GameName: *game, Source: "cli"})
		}
	} else {
		for start := 0; start < len(urls) || start == 0; start += service.MaxURLs {
			end := start + service.MaxURLs
			if end > len(urls) {
				end = len(urls)
			}
			messages = append(messages, &queue.CheckMessage{URLs: urls[start:end], GameName: *game, Source: "cli"})
		}
	}

	published := 0
	for _, msg := range messages {
		if err := producer.PublishCheck(ctx, msg); err != nil {
			logger.WithError(err).WithField("urls", msg.URLs).Error("Failed to publish check")
			continue
		}
		published++
		fmt.Println(msg.ID)
	}

	if pending, consumers, err := mq.QueueStats(); err == nil {
		logger.WithFields(logrus.Fields{
			"pending":   pending,
			"consumers": consumers,
		}).Info("Queue stats")
	}
	if published < len(messages) {
		os.Exit(1)
	}
}

func readURLs(path string) ([]string, error) {
	f := os.Stdin
	if path != "-" {
		var err error
		if f, err = os.Open(path); err != nil {
			return nil, err
		}
		defer f.Close()
	}

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}
