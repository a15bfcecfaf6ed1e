package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ayush/medical-report-worker/internal/apperrors"
	"github.com/ayush/medical-report-worker/internal/config"
	"github.com/ayush/medical-report-worker/internal/knowledge"
	"github.com/ayush/medical-report-worker/internal/logging"
	"github.com/ayush/medical-report-worker/internal/models"
	"github.com/ayush/medical-report-worker/internal/queue"
	"github.com/ayush/medical-report-worker/internal/store"
)

func setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logging.New("reportctl", cfg.Env, cfg.LogLevel), nil
}

func dialQueue(cfg *config.Config, logger zerolog.Logger) (*queue.Client, error) {
	return queue.Dial(queue.Config{
		URL:             cfg.RabbitMQURL,
		RequestQueue:    cfg.RequestQueue,
		ResponseQueue:   cfg.ResponseQueue,
		DeadLetterQueue: cfg.DeadLetterQueue(),
		Prefetch:        cfg.PrefetchCount,
		MaxRetries:      cfg.MaxRetries,
	}, logger)
}

func kbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kb",
		Short: "Knowledge base utilities",
	}

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import metadata.json and markdown files into MongoDB",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.KBDir
			}

			ctx := cmd.Context()
			client, err := store.ConnectMongo(ctx, cfg.MongoURL)
			if err != nil {
				return err
			}
			defer client.Disconnect(context.Background())

			mongoStore := store.NewMongoStore(client.Database(cfg.MongoDB))
			if err := mongoStore.EnsureIndexes(ctx); err != nil {
				return err
			}
			res, err := knowledge.NewImporter(mongoStore, logger).Import(ctx, os.DirFS(dir))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d entries (%d new, %d updated)\n", res.Total(), res.Inserted, res.Updated)
			return nil
		},
	}
	importCmd.Flags().String("dir", "", "Knowledge base directory (defaults to KB_DIR)")
	cmd.AddCommand(importCmd)

	return cmd
}

// loadRequest reads a generation request from r and fills in missing ids.
func loadRequest(r io.Reader, userID, requestID string) (*models.GenerationRequest, error) {
	var req models.GenerationRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	if requestID != "" {
		req.RequestID = requestID
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if userID != "" {
		req.UserID = userID
	}
	if req.UserID == "" {
		return nil, apperrors.Validation("user_id is required: set it in the file or pass --user-id")
	}
	if len(req.ResourcesTable) == 0 {
		return nil, apperrors.Validation("resources_table must contain at least one resource")
	}
	return &req, nil
}

func sendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Publish a generation request from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			userID, _ := cmd.Flags().GetString("user-id")
			requestID, _ := cmd.Flags().GetString("request-id")

			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()
			req, err := loadRequest(f, userID, requestID)
			if err != nil {
				return err
			}

			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			qc, err := dialQueue(cfg, logger)
			if err != nil {
				return err
			}
			defer qc.Close()

			if err := qc.PublishRequest(cmd.Context(), req); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued request %s for user %s\n", req.RequestID, req.UserID)
			return nil
		},
	}
	cmd.Flags().String("file", "", "Path to a request JSON file")
	cmd.Flags().String("user-id", "", "Override user_id")
	cmd.Flags().String("request-id", "", "Override request_id")
	cmd.MarkFlagRequired("file")
	return cmd
}

// printResponse writes msg as one JSON line and reports whether it matches
// the awaited request id.
func printResponse(w io.Writer, msg models.ResponseMessage, awaiting string) (bool, error) {
	line, err := json.Marshal(msg)
	if err != nil {
		return false, err
	}
	if _, err := fmt.Fprintln(w, string(line)); err != nil {
		return false, err
	}
	return awaiting != "" && msg.RequestID == awaiting, nil
}

func listenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Print responses from the response queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout, _ := cmd.Flags().GetDuration("timeout")
			awaiting, _ := cmd.Flags().GetString("request-id")

			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			qc, err := dialQueue(cfg, logger)
			if err != nil {
				return err
			}
			defer qc.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			found := false
			err = qc.ConsumeResponses(ctx, func(_ context.Context, msg models.ResponseMessage) error {
				done, err := printResponse(cmd.OutOrStdout(), msg, awaiting)
				if done {
					found = true
					cancel()
				}
				return err
			})
			if err != nil {
				return err
			}
			if awaiting != "" && !found {
				return fmt.Errorf("no response for %s within %s", awaiting, timeout)
			}
			return nil
		},
	}
	cmd.Flags().Duration("timeout", 2*time.Minute, "How long to listen")
	cmd.Flags().String("request-id", "", "Stop after the response for this request")
	return cmd
}
