package rules

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/castmod/castmod/automod/engine"
	"github.com/castmod/castmod/automod/registry"

	"github.com/stretchr/testify/assert"
)

func webhookFixture(t *testing.T, handler http.HandlerFunc) (*engine.Engine, string) {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	eng := engineFixture(Deps{
		WebhookClient:  srv.Client(),
		WebhookSecret:  "s3cret",
		WebhookTimeout: 200 * time.Millisecond,
	})
	return eng, srv.URL
}

func TestWebhookTriggered(t *testing.T) {
	assert := assert.New(t)

	var got webhookPayload
	var secret string
	eng, url := webhookFixture(t, func(w http.ResponseWriter, r *http.Request) {
		secret = r.Header.Get("x-webhook-secret")
		assert.NoError(json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"message":"ok"}`))
	})

	res, err := runCheck(t, eng, "webhook", map[string]any{"url": url}, userInput(alice))
	assert.NoError(err)
	assert.Equal(engine.CheckResult{Result: true, Message: "ok"}, res)
	assert.Equal("s3cret", secret)
	assert.Equal(alice.Fid, got.User.Fid)
	assert.Equal("memes", got.Channel.ID)
	assert.Nil(got.Cast)
}

func TestWebhookStatusMessages(t *testing.T) {
	assert := assert.New(t)

	long := strings.Repeat("x", 200)
	eng, url := webhookFixture(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/pass":
			w.WriteHeader(http.StatusOK)
		case "/reject":
			w.WriteHeader(http.StatusBadRequest)
		case "/reject-long":
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"message": long})
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	})

	res, err := runCheck(t, eng, "webhook", map[string]any{"url": url + "/pass"}, userInput(alice))
	assert.NoError(err)
	assert.Equal(engine.CheckResult{Result: true, Message: "Webhook rule triggered"}, res)

	res, err = runCheck(t, eng, "webhook", map[string]any{"url": url + "/reject"}, userInput(alice))
	assert.NoError(err)
	assert.Equal(engine.CheckResult{Result: false, Message: "Webhook rule did not trigger"}, res)

	res, err = runCheck(t, eng, "webhook", map[string]any{"url": url + "/reject-long"}, userInput(alice))
	assert.NoError(err)
	assert.False(res.Result)
	assert.Equal(long[:engine.MaxMessageLength], res.Message)

	// other statuses go to the failure mode
	res, err = runCheck(t, eng, "webhook", map[string]any{"url": url + "/broken"}, userInput(alice))
	assert.NoError(err)
	assert.Equal(engine.CheckResult{Result: false, Message: "Webhook failed, failure mode is do not trigger"}, res)

	res, err = runCheck(t, eng, "webhook", map[string]any{"url": url + "/broken", "failureMode": "trigger"}, userInput(alice))
	assert.NoError(err)
	assert.Equal(engine.CheckResult{Result: true, Message: "Webhook failed, failure mode is trigger"}, res)
}

func TestWebhookTimeout(t *testing.T) {
	assert := assert.New(t)

	eng, url := webhookFixture(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	})

	start := time.Now()
	res, err := runCheck(t, eng, "webhook", map[string]any{"url": url, "failureMode": "trigger"}, userInput(alice))
	assert.NoError(err)
	assert.Less(time.Since(start), 2*time.Second)
	assert.Equal(engine.CheckResult{Result: true, Message: "Webhook timed out, failure mode is trigger"}, res)

	res, err = runCheck(t, eng, "webhook", map[string]any{"url": url}, userInput(alice))
	assert.NoError(err)
	assert.Equal(engine.CheckResult{Result: false, Message: "Webhook timed out, failure mode is do not trigger"}, res)
}

func TestWebhookNetworkError(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()
	eng := engineFixture(Deps{WebhookClient: http.DefaultClient, WebhookTimeout: time.Second})

	res, err := runCheck(t, eng, "webhook", map[string]any{"url": url, "failureMode": "doNotTrigger"}, userInput(alice))
	assert.NoError(err)
	assert.Equal(engine.CheckResult{Result: false, Message: "Webhook failed, failure mode is do not trigger"}, res)
}

func TestWebhookCastPayload(t *testing.T) {
	assert := assert.New(t)

	var got webhookPayload
	eng, url := webhookFixture(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"no frames here"}`))
	})

	// through the engine, inverted: a 400 passes the cast
	g := &registry.RuleGroup{Operator: registry.OperatorAnd, Children: []registry.Node{
		registry.RuleNode(registry.RuleInstance{ID: "w", RuleName: "webhook", Inverted: true, Args: map[string]any{"url": url}}),
	}}
	ev := eng.Evaluate(context.Background(), g, registry.ScopeCast, castInput(engine.Cast{Hash: "0xabc", Text: "gm"}))
	assert.True(ev.Result)
	assert.Equal("no frames here", ev.Reason)
	if assert.NotNil(got.Cast) {
		assert.Equal("0xabc", got.Cast.Hash)
	}
}
