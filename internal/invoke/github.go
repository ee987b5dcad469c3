package invoke

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/coreeng/check-dispatch/internal/dispatch"
)

// ErrLocalWorkflow is returned for jobs whose reusable workflow lives in the
// triggering repository; those cannot be started through the dispatch API.
var ErrLocalWorkflow = errors.New("local reusable workflows cannot be dispatched remotely")

// GitHubInvoker starts the referenced workflow through the GitHub
// workflow_dispatch REST endpoint, passing the parameter bag as inputs and
// the reference's version as the ref to run on.
type GitHubInvoker struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

// NewGitHubInvoker returns an invoker with its own HTTP client.
func NewGitHubInvoker(baseURL, token string, timeout time.Duration) *GitHubInvoker {
	return &GitHubInvoker{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: timeout},
	}
}

type workflowDispatch struct {
	Ref    string            `json:"ref"`
	Inputs map[string]string `json:"inputs,omitempty"`
}

func (inv *GitHubInvoker) Invoke(ctx context.Context, req dispatch.Request) error {
	ref := req.Run.Uses
	if ref.Local {
		return ErrLocalWorkflow
	}
	if ref.IsZero() {
		return fmt.Errorf("job %s has no reusable workflow", req.Run.Job)
	}

	body, err := json.Marshal(workflowDispatch{
		Ref:    ref.Version,
		Inputs: req.Run.Params.Strings(),
	})
	if err != nil {
		return fmt.Errorf("encode dispatch: %w", err)
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/actions/workflows/%s/dispatches",
		inv.BaseURL,
		url.PathEscape(ref.Owner),
		url.PathEscape(ref.Repo),
		url.PathEscape(path.Base(ref.Path)),
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "application/vnd.github+json")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if inv.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+inv.Token)
	}

	client := inv.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("dispatch %s: %s: %s", ref, resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}
