package riskclient

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	cwerrors "chainwatch/internal/errors"
	"chainwatch/internal/observability"
	"chainwatch/internal/risk"
)

type chatRequest struct {
	Message string      `json:"message"`
	Region  risk.Region `json:"region,omitempty"`
}

// ChatReply is the assistant's answer.
type ChatReply struct {
	Response string `json:"response"`
	// BasedOnData is false when the service had no assessment to ground the answer.
	BasedOnData bool `json:"based_on_data"`
}

// Chat sends one question. region is optional context. Every failure is an
// *errors.ChatFailed.
func (c *Client) Chat(ctx context.Context, message string, region risk.Region) (reply ChatReply, err error) {
	ctx, span := c.tracer.StartSpan(ctx, observability.SpanChat, observability.RegionAttrs(string(region))...)
	started := time.Now()
	defer func() {
		c.metrics.RecordChat(ctx, statusLabel(err), time.Since(started))
		observability.EndSpan(span, err)
	}()

	resp, err := c.do(ctx, http.MethodPost, "/chat", chatRequest{Message: message, Region: region})
	if err != nil {
		return ChatReply{}, &cwerrors.ChatFailed{Reason: cwerrors.Reason(err), StatusCode: resp.status, Err: err}
	}
	if !resp.ok() {
		return ChatReply{}, &cwerrors.ChatFailed{Reason: errorDetail(resp), StatusCode: resp.status}
	}

	var payload struct {
		Response    *string `json:"response"`
		BasedOnData *bool   `json:"based_on_data"`
	}
	if err := json.Unmarshal(resp.body, &payload); err != nil {
		return ChatReply{}, &cwerrors.ChatFailed{Reason: "malformed chat response", StatusCode: resp.status, Err: err}
	}
	if payload.Response == nil {
		return ChatReply{}, &cwerrors.ChatFailed{Reason: "chat response missing", StatusCode: resp.status}
	}

	reply = ChatReply{Response: *payload.Response}
	if payload.BasedOnData != nil {
		reply.BasedOnData = *payload.BasedOnData
	}
	return reply, nil
}
