package routes

import (
	"context"
	"net/http"
	"runtime/debug"

	"github.com/OFFIS-RIT/lexgraph/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/logger"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/query"

	"github.com/labstack/echo/v4"
)

// ChatHandler answers a legal question from the indexed documents. The
// handler always responds 200 with an answer once the body is valid; a
// failed synthesis yields the fallback sentence.
func ChatHandler(c echo.Context) error {
	type chatBody struct {
		Question string `json:"question" validate:"required,max=2000"`
		Trace    bool   `json:"trace"`
	}

	type chatResponse struct {
		Answer  string                    `json:"answer,omitempty"`
		Message string                    `json:"message,omitempty"`
		Trace   *query.QueryTraceSnapshot `json:"trace,omitempty"`
	}

	data := new(chatBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, chatResponse{
			Message: "Invalid request body",
		})
	}

	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, chatResponse{
			Message: "Invalid request body",
		})
	}

	synth := c.(*middleware.AppContext).App.Synthesizer

	var trace *query.QueryTrace
	if data.Trace {
		trace = query.NewQueryTrace()
	}
	answer := answerQuestion(c.Request().Context(), synth, data.Question, trace)

	res := chatResponse{Answer: answer}
	if trace != nil {
		snapshot := trace.Snapshot()
		res.Trace = &snapshot
	}
	return c.JSON(http.StatusOK, res)
}

// answerQuestion never fails: errors, panics and empty answers all turn
// into the fallback sentence.
func answerQuestion(ctx context.Context, synth middleware.Answerer, question string, trace *query.QueryTrace) (answer string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[Server] Recovered panic while answering", "panic", r, "stack", string(debug.Stack()))
			answer = query.FallbackAnswer
		}
	}()

	var err error
	if trace != nil {
		answer, err = synth.AnswerWithTrace(ctx, question, trace)
	} else {
		answer, err = synth.Answer(ctx, question)
	}
	if err != nil {
		logger.Error("[Server] Answer failed", "err", err)
	}
	if answer == "" {
		answer = query.FallbackAnswer
	}
	return answer
}
