package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	braintrust "github.com/braintrustdata/braintrust-sdk-go"
	"github.com/braintrustdata/braintrust-sdk-go/eval"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	decisionMatched   = "matched"
	decisionUnmatched = "unmatched"
)

// evalInput is one routing scenario: an order plus the roster it is routed against.
type evalInput struct {
	Name       string          `json:"name"`
	Order      json.RawMessage `json:"order"`
	Candidates json.RawMessage `json:"candidates"`
}

type evalOutput struct {
	Status           string   `json:"status,omitempty"`
	SelectedVendorID string   `json:"selected_vendor_id,omitempty"`
	Ranked           []string `json:"ranked,omitempty"`
	ReasonCodes      []string `json:"reason_codes,omitempty"`
	Evaluated        int      `json:"evaluated,omitempty"`
}

type rawCase struct {
	Input    evalInput  `json:"input"`
	Expected evalOutput `json:"expected"`
}

type config struct {
	APIURL         string
	CasesPath      string
	Project        string
	Experiment     string
	RequestTimeout time.Duration
	Parallelism    int
}

type evalRunner struct {
	cfg    config
	client *http.Client
}

type previewResponse struct {
	Status   string `json:"status"`
	Selected *struct {
		VendorID string `json:"vendor_id"`
	} `json:"selected"`
	Ranked []struct {
		VendorID string `json:"vendor_id"`
	} `json:"ranked"`
	Reasons []struct {
		Code string `json:"code"`
	} `json:"reasons"`
	Evaluated int `json:"evaluated"`
}

func main() {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		fail(err)
	}

	if strings.TrimSpace(os.Getenv("BRAINTRUST_API_KEY")) == "" {
		fail(errors.New("BRAINTRUST_API_KEY is required"))
	}

	cases, err := loadCases(cfg.CasesPath)
	if err != nil {
		fail(err)
	}

	runner := &evalRunner{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
	}
	if err := runner.healthCheck(ctx); err != nil {
		fail(err)
	}

	tp := sdktrace.NewTracerProvider()
	defer func() {
		_ = tp.Shutdown(context.Background())
	}()

	bt, err := braintrust.New(
		tp,
		braintrust.WithProject(cfg.Project),
		braintrust.WithBlockingLogin(true),
	)
	if err != nil {
		fail(fmt.Errorf("failed to initialize Braintrust: %w", err))
	}

	evaluator := braintrust.NewEvaluator[evalInput, evalOutput](bt)

	result, err := evaluator.Run(ctx, eval.Opts[evalInput, evalOutput]{
		Experiment: cfg.Experiment,
		Dataset:    eval.NewDataset(cases),
		Task:       eval.T(runner.runCase),
		Scorers: []eval.Scorer[evalInput, evalOutput]{
			eval.NewScorer("decision_status", scoreStatus),
			eval.NewScorer("selected_vendor", scoreSelectedVendor),
			eval.NewScorer("ranking_order", scoreRankingOrder),
			eval.NewScorer("reason_codes", scoreReasonCodes),
			eval.NewScorer("fail_closed", scoreFailClosed),
		},
		Tags: []string{"signing-router", "routing", "preview-api"},
		Metadata: map[string]any{
			"service": "notary-signing-router",
			"api_url": cfg.APIURL,
		},
		Parallelism: cfg.Parallelism,
	})
	if err != nil {
		fail(fmt.Errorf("eval run failed: %w", err))
	}

	if runErr := result.Error(); runErr != nil {
		fail(fmt.Errorf("eval completed with errors: %w", runErr))
	}

	if link, err := result.Permalink(); err == nil && link != "" {
		fmt.Println("Braintrust report:", link)
	}

	fmt.Println(result.String())
}

func loadConfig() (config, error) {
	cfg := config{
		APIURL:         getenv("EVAL_API_URL", "http://localhost:8080"),
		CasesPath:      getenv("EVAL_CASES_PATH", "cases.json"),
		Project:        getenv("BRAINTRUST_PROJECT", "notary-signing-router"),
		Experiment:     getenv("EVAL_EXPERIMENT", "vendor-routing-eval"),
		RequestTimeout: time.Duration(getenvInt("EVAL_REQUEST_TIMEOUT_SEC", 20)) * time.Second,
		Parallelism:    getenvInt("EVAL_PARALLELISM", 1),
	}

	if cfg.RequestTimeout <= 0 {
		return config{}, errors.New("EVAL_REQUEST_TIMEOUT_SEC must be > 0")
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	return cfg, nil
}

func loadCases(path string) ([]eval.Case[evalInput, evalOutput], error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to read cases file %s: %w", resolved, err)
	}

	var raw []rawCase
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse cases file %s: %w", resolved, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("cases file is empty: %s", resolved)
	}

	cases := make([]eval.Case[evalInput, evalOutput], 0, len(raw))
	for _, row := range raw {
		cases = append(cases, eval.Case[evalInput, evalOutput]{
			Input:    row.Input,
			Expected: row.Expected,
			Metadata: map[string]any{"name": row.Input.Name, "expected_status": row.Expected.Status},
		})
	}
	return cases, nil
}

func (r *evalRunner) runCase(ctx context.Context, input evalInput) (evalOutput, error) {
	body := map[string]json.RawMessage{
		"order":      input.Order,
		"candidates": input.Candidates,
	}
	var resp previewResponse
	if err := r.doJSON(ctx, http.MethodPost, "/v1/routing/preview", body, &resp); err != nil {
		return evalOutput{}, err
	}

	out := evalOutput{Status: resp.Status, Evaluated: resp.Evaluated}
	if resp.Selected != nil {
		out.SelectedVendorID = resp.Selected.VendorID
	}
	for _, m := range resp.Ranked {
		out.Ranked = append(out.Ranked, m.VendorID)
	}
	for _, reason := range resp.Reasons {
		out.ReasonCodes = append(out.ReasonCodes, reason.Code)
	}
	return out, nil
}

func (r *evalRunner) healthCheck(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := r.doJSON(ctx, http.MethodGet, "/healthz", nil, &resp); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if strings.ToLower(resp.Status) != "ok" {
		return fmt.Errorf("health check returned non-ok status: %s", resp.Status)
	}
	return nil
}

func (r *evalRunner) doJSON(ctx context.Context, method, path string, in any, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, strings.TrimRight(r.cfg.APIURL, "/")+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("request failed: method=%s path=%s status=%d body=%s", method, path, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("decode failed: %w (payload=%s)", err, string(payload))
		}
	}
	return nil
}

func scoreStatus(_ context.Context, tr eval.TaskResult[evalInput, evalOutput]) (eval.Scores, error) {
	expected := normalize(tr.Expected.Status)
	if expected == "" {
		expected = decisionMatched
	}
	if normalize(tr.Output.Status) == expected {
		return eval.S(1), nil
	}
	return eval.S(0), nil
}

func scoreSelectedVendor(_ context.Context, tr eval.TaskResult[evalInput, evalOutput]) (eval.Scores, error) {
	if tr.Expected.SelectedVendorID == "" {
		if tr.Output.SelectedVendorID == "" {
			return eval.S(1), nil
		}
		return eval.S(0), nil
	}
	if tr.Output.SelectedVendorID == tr.Expected.SelectedVendorID {
		return eval.S(1), nil
	}
	return eval.S(0), nil
}

// scoreRankingOrder is the fraction of the expected ranking prefix reproduced in order.
func scoreRankingOrder(_ context.Context, tr eval.TaskResult[evalInput, evalOutput]) (eval.Scores, error) {
	expected := tr.Expected.Ranked
	if len(expected) == 0 {
		return eval.S(1), nil
	}
	matched := 0
	for i, id := range expected {
		if i >= len(tr.Output.Ranked) || tr.Output.Ranked[i] != id {
			break
		}
		matched++
	}
	return eval.S(float64(matched) / float64(len(expected))), nil
}

// scoreReasonCodes is the Jaccard overlap between expected and returned reason codes.
func scoreReasonCodes(_ context.Context, tr eval.TaskResult[evalInput, evalOutput]) (eval.Scores, error) {
	expected := toSet(tr.Expected.ReasonCodes)
	actual := toSet(tr.Output.ReasonCodes)
	if len(expected) == 0 && len(actual) == 0 {
		return eval.S(1), nil
	}
	union := make(map[string]struct{}, len(expected)+len(actual))
	inter := 0
	for k := range expected {
		union[k] = struct{}{}
		if _, ok := actual[k]; ok {
			inter++
		}
	}
	for k := range actual {
		union[k] = struct{}{}
	}
	return eval.S(float64(inter) / float64(len(union))), nil
}

// scoreFailClosed penalizes any selection on a case that must not match.
func scoreFailClosed(_ context.Context, tr eval.TaskResult[evalInput, evalOutput]) (eval.Scores, error) {
	if normalize(tr.Expected.Status) != decisionUnmatched {
		return eval.S(1), nil
	}
	if tr.Output.SelectedVendorID == "" && len(tr.Output.Ranked) == 0 && len(tr.Output.ReasonCodes) > 0 {
		return eval.S(1), nil
	}
	return eval.S(0), nil
}

func toSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, item := range items {
		if v := normalize(item); v != "" {
			out[v] = struct{}{}
		}
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func resolvePath(path string) (string, error) {
	if path == "" {
		return "", errors.New("path is empty")
	}
	if filepath.IsAbs(path) {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		return "", fmt.Errorf("path not found: %s", path)
	}

	candidates := []string{
		path,
		filepath.Join("evals", "braintrust", path),
		filepath.Join("..", "..", path),
	}
	for _, c := range candidates {
		absPath, err := filepath.Abs(c)
		if err != nil {
			continue
		}
		if _, err := os.Stat(absPath); err == nil {
			return absPath, nil
		}
	}
	return "", fmt.Errorf("path not found: %s", path)
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out int
	if _, err := fmt.Sscanf(v, "%d", &out); err != nil {
		return fallback
	}
	return out
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
