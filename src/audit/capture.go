// Package audit persists unexpected failures to the exceptions table so they
// outlive the process log.
package audit

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeledger/src/model"
	"tradeledger/src/repository"
	"tradeledger/src/serializer"
)

const (
	LevelWarn  = "warn"
	LevelError = "error"
	LevelFatal = "fatal"
)

// Recorder captures exceptions raised by one agent.
type Recorder struct {
	writer serializer.Writer
	agent  string
	now    func() time.Time
}

// NewRecorder accepts a nil writer, in which case exceptions are only logged.
func NewRecorder(writer serializer.Writer, agent string) *Recorder {
	return &Recorder{writer: writer, agent: agent, now: time.Now}
}

// Capture records a system exception, logs it locally, and persists it
// through the serializer at background priority.
func (r *Recorder) Capture(
	ctx context.Context,
	module string,
	method string,
	level string,
	err error,
	contextData map[string]interface{},
) {

	if err == nil {
		return
	}

	var ctxJSON string
	if contextData != nil {
		if b, e := json.Marshal(contextData); e == nil {
			ctxJSON = string(b)
		}
	}

	exc := &model.Exception{
		Agent:     r.agent,
		Module:    module,
		Method:    method,
		Message:   err.Error(),
		Stack:     string(debug.Stack()),
		Level:     level,
		Context:   ctxJSON,
		CreatedAt: r.now(),
	}

	// Local log
	logger.WithFields(map[string]interface{}{
		"agent":  r.agent,
		"module": module,
		"method": method,
		"level":  level,
	}).WithError(err).Error("System exception captured")

	if r.writer == nil {
		return
	}
	wctx := context.WithoutCancel(ctx)
	e := r.writer.Submit(wctx, serializer.PriorityBackground, "audit.capture", func(tx *gorm.DB) error {
		return repository.NewExceptionRepository(tx).Create(wctx, exc)
	})
	if e != nil {
		logger.WithError(e).Error("Failed to persist exception")
	}
}
