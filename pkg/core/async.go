package core

import (
	"context"
	"sync"

	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/reasoning"
	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/retrieval"
)

// AsyncAssistant provides asynchronous memory operations.
//
// It wraps the synchronous Assistant and executes operations in separate
// goroutines, returning channels that receive the result when the operation
// completes. Wait() blocks until all in-flight operations finish.
//
// Example:
//
//	assistant, _ := core.NewAsyncAssistant(config)
//	defer assistant.Close()
//
//	resultChan := assistant.IngestAsync(ctx, "p1", "Patient reports fatigue")
//	result := <-resultChan
//	if result.Error != nil {
//	    log.Fatal(result.Error)
//	}
type AsyncAssistant struct {
	*Assistant
	wg sync.WaitGroup
}

// IngestOutcome carries an asynchronous ingestion result.
type IngestOutcome struct {
	Result *IngestResult
	Error  error
}

// RetrieveOutcome carries an asynchronous retrieval result.
type RetrieveOutcome struct {
	Evidence []*retrieval.Evidence
	Error    error
}

// AnswerOutcome carries an asynchronous answer result.
type AnswerOutcome struct {
	Response *reasoning.Response
	Error    error
}

// NewAsyncAssistant creates a new asynchronous Assistant.
func NewAsyncAssistant(cfg *Config) (*AsyncAssistant, error) {
	assistant, err := NewAssistant(cfg)
	if err != nil {
		return nil, err
	}
	return &AsyncAssistant{Assistant: assistant}, nil
}

// IngestAsync ingests content in a separate goroutine.
func (aa *AsyncAssistant) IngestAsync(ctx context.Context, entityID, content string, opts ...IngestOption) <-chan *IngestOutcome {
	resultChan := make(chan *IngestOutcome, 1)
	aa.wg.Add(1)

	go func() {
		defer aa.wg.Done()
		result, err := aa.Ingest(ctx, entityID, content, opts...)
		resultChan <- &IngestOutcome{Result: result, Error: err}
		close(resultChan)
	}()

	return resultChan
}

// RetrieveAsync retrieves evidence in a separate goroutine.
func (aa *AsyncAssistant) RetrieveAsync(ctx context.Context, entityID, query string, opts ...RetrieveOption) <-chan *RetrieveOutcome {
	resultChan := make(chan *RetrieveOutcome, 1)
	aa.wg.Add(1)

	go func() {
		defer aa.wg.Done()
		evidence, err := aa.Retrieve(ctx, entityID, query, opts...)
		resultChan <- &RetrieveOutcome{Evidence: evidence, Error: err}
		close(resultChan)
	}()

	return resultChan
}

// AnswerAsync generates a grounded answer in a separate goroutine.
func (aa *AsyncAssistant) AnswerAsync(ctx context.Context, entityID, question string, opts ...RetrieveOption) <-chan *AnswerOutcome {
	resultChan := make(chan *AnswerOutcome, 1)
	aa.wg.Add(1)

	go func() {
		defer aa.wg.Done()
		response, err := aa.Answer(ctx, entityID, question, opts...)
		resultChan <- &AnswerOutcome{Response: response, Error: err}
		close(resultChan)
	}()

	return resultChan
}

// Wait blocks until all in-flight asynchronous operations complete.
func (aa *AsyncAssistant) Wait() {
	aa.wg.Wait()
}

// Close waits for in-flight operations and closes the underlying Assistant.
func (aa *AsyncAssistant) Close() error {
	aa.Wait()
	return aa.Assistant.Close()
}
