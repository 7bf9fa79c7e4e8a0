package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/classify"
	"github.com/sells-group/leadflow/internal/email"
	"github.com/sells-group/leadflow/internal/monitoring"
	"github.com/sells-group/leadflow/internal/oracle"
	"github.com/sells-group/leadflow/internal/pipeline"
	"github.com/sells-group/leadflow/internal/store"
	"github.com/sells-group/leadflow/pkg/mail"
)

// pipelineEnv holds the wired pipeline collaborators for a command run.
type pipelineEnv struct {
	Store     store.Store
	Processor *pipeline.Processor
	Workers   *pipeline.Workers
	Collector *monitoring.Collector
}

// Close drains in-flight pipeline runs before releasing the store.
func (e *pipelineEnv) Close() {
	e.Workers.Wait()
	_ = e.Store.Close()
}

func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	o, err := oracle.New(cfg.Oracle)
	if err != nil {
		st.Close()
		return nil, err
	}

	var transport mail.Transport
	if cfg.Mail.Host == "" {
		zap.L().Warn("mail.host not set, follow-up emails will be logged only")
		transport = mail.NewLog()
	} else {
		transport, err = mail.NewSMTP(mail.Config{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		})
		if err != nil {
			st.Close()
			return nil, err
		}
	}

	engine := classify.NewEngine(o, cfg.Classify)
	composer := email.NewComposer(o)
	dispatcher := email.NewDispatcher(transport, cfg.Mail)
	processor := pipeline.NewProcessor(st, engine, composer, dispatcher)
	workers := pipeline.NewWorkers(ctx, processor, cfg.Pipeline.MaxConcurrent)

	return &pipelineEnv{
		Store:     st,
		Processor: processor,
		Workers:   workers,
		Collector: monitoring.NewCollector(st),
	}, nil
}
