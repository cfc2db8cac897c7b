// Package github implements the issue tracker gateway over the GitHub REST API.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v68/github"

	"github.com/tinkerbelle-io/kube-medic/internal/gateway"
)

// DefaultAPIURL is the public GitHub API endpoint.
const DefaultAPIURL = "https://api.github.com"

// Client files issues, branches, files and pull requests in one repository.
type Client struct {
	gh    *gh.Client
	owner string
	repo  string
	log   *slog.Logger
}

// NewClient creates a client for owner/repo. An empty apiURL uses DefaultAPIURL.
func NewClient(apiURL, token, owner, repo string) *Client {
	client := gh.NewClient(&http.Client{Timeout: 30 * time.Second})
	if token != "" {
		client = client.WithAuthToken(token)
	}
	if apiURL != "" && apiURL != DefaultAPIURL {
		if u, err := url.Parse(strings.TrimRight(apiURL, "/") + "/"); err == nil {
			client.BaseURL = u
		}
	}
	return &Client{
		gh:    client,
		owner: owner,
		repo:  repo,
		log:   slog.Default().With("component", "github"),
	}
}

// CreateIssue opens an issue with the given labels.
func (c *Client) CreateIssue(ctx context.Context, title, body string, labels []string) (gateway.IssueRef, error) {
	req := &gh.IssueRequest{
		Title:  gh.Ptr(title),
		Body:   gh.Ptr(body),
		Labels: &labels,
	}
	issue, _, err := c.gh.Issues.Create(ctx, c.owner, c.repo, req)
	if err != nil {
		return gateway.IssueRef{}, fmt.Errorf("create issue: %w", err)
	}
	c.log.Info("issue created", "number", issue.GetNumber(), "url", issue.GetHTMLURL())
	return gateway.IssueRef{Number: issue.GetNumber(), URL: issue.GetHTMLURL()}, nil
}

// CreateBranch creates branch name at the head of base and returns the new ref.
func (c *Client) CreateBranch(ctx context.Context, name, base string) (string, error) {
	head, _, err := c.gh.Git.GetRef(ctx, c.owner, c.repo, "heads/"+base)
	if err != nil {
		return "", fmt.Errorf("resolve base branch %s: %w", base, err)
	}
	sha := head.GetObject().GetSHA()

	created, _, err := c.gh.Git.CreateRef(ctx, c.owner, c.repo, &gh.Reference{
		Ref:    gh.Ptr("refs/heads/" + name),
		Object: &gh.GitObject{SHA: gh.Ptr(sha)},
	})
	if err != nil {
		return "", fmt.Errorf("create branch %s: %w", name, err)
	}
	c.log.Info("branch created", "branch", name, "base", base, "sha", sha)
	return created.GetRef(), nil
}

// CreateFile commits content at path on branch and returns the commit SHA. An
// existing file is overwritten.
func (c *Client) CreateFile(ctx context.Context, path, content, message, branch string) (string, error) {
	path = strings.TrimLeft(path, "/")
	opts := &gh.RepositoryContentFileOptions{
		Message: gh.Ptr(message),
		Content: []byte(content),
		Branch:  gh.Ptr(branch),
	}

	resp, _, err := c.gh.Repositories.CreateFile(ctx, c.owner, c.repo, path, opts)
	if isStatus(err, http.StatusUnprocessableEntity) {
		// The file exists on the branch; updating it needs the blob SHA.
		existing, _, _, getErr := c.gh.Repositories.GetContents(ctx, c.owner, c.repo, path,
			&gh.RepositoryContentGetOptions{Ref: branch})
		if getErr != nil || existing == nil {
			return "", fmt.Errorf("create file %s: %w", path, err)
		}
		opts.SHA = existing.SHA
		resp, _, err = c.gh.Repositories.UpdateFile(ctx, c.owner, c.repo, path, opts)
	}
	if err != nil {
		return "", fmt.Errorf("create file %s: %w", path, err)
	}
	sha := resp.Commit.GetSHA()
	c.log.Info("file committed", "path", path, "branch", branch, "commit", sha)
	return sha, nil
}

// CreatePullRequest opens a pull request from head into base.
func (c *Client) CreatePullRequest(ctx context.Context, title, body, head, base string) (gateway.IssueRef, error) {
	pr, _, err := c.gh.PullRequests.Create(ctx, c.owner, c.repo, &gh.NewPullRequest{
		Title: gh.Ptr(title),
		Body:  gh.Ptr(body),
		Head:  gh.Ptr(head),
		Base:  gh.Ptr(base),
	})
	if err != nil {
		return gateway.IssueRef{}, fmt.Errorf("create pull request: %w", err)
	}
	c.log.Info("pull request created", "number", pr.GetNumber(), "url", pr.GetHTMLURL())
	return gateway.IssueRef{Number: pr.GetNumber(), URL: pr.GetHTMLURL()}, nil
}

// StatusCode returns the HTTP status of a GitHub API error, or 0.
func StatusCode(err error) int {
	var er *gh.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		return er.Response.StatusCode
	}
	return 0
}

func isStatus(err error, code int) bool {
	return err != nil && StatusCode(err) == code
}
