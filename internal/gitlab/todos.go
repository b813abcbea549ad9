package gitlab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hay-kot/gltodo/internal/core/todo"
)

// MaxPerPage is GitLab's largest accepted page size.
const MaxPerPage = 100

const bodySnippetRunes = 280

// apiTodo is the wire shape of GET /todos entries.
type apiTodo struct {
	ID      json.Number `json:"id"`
	Project *struct {
		PathWithNamespace string `json:"path_with_namespace"`
	} `json:"project"`
	Group *struct {
		FullPath string `json:"full_path"`
	} `json:"group"`
	Author *struct {
		Username string `json:"username"`
	} `json:"author"`
	ActionName string `json:"action_name"`
	TargetType string `json:"target_type"`
	Target     *struct {
		Title string `json:"title"`
	} `json:"target"`
	TargetURL string    `json:"target_url"`
	Body      string    `json:"body"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t apiTodo) toItem() (todo.Item, error) {
	id := t.ID.String()
	if id == "" {
		return todo.Item{}, fmt.Errorf("%w: todo without id", ErrMalformed)
	}

	item := todo.Item{
		ID:         id,
		Action:     todo.ParseAction(t.ActionName),
		TargetType: t.TargetType,
		TargetURL:  t.TargetURL,
		Body:       snippet(t.Body, bodySnippetRunes),
		State:      todo.StatePending,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}

	switch {
	case t.Project != nil:
		item.Project = t.Project.PathWithNamespace
	case t.Group != nil:
		item.Project = t.Group.FullPath
	}
	if t.Author != nil {
		item.Author = t.Author.Username
	}
	if t.Target != nil {
		item.TargetTitle = t.Target.Title
	}
	if t.State == "done" {
		item.State = todo.StateDone
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = item.CreatedAt
	}

	return item, nil
}

func snippet(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}

// FetchOptions bounds one paginated fetch.
type FetchOptions struct {
	// StartPage resumes from a cursor; empty starts at page 1.
	StartPage string
	// PageBudget caps pages fetched in this call; <= 0 means unlimited.
	PageBudget int
	PerPage    int
	// Since enables incremental mode: fetching stops after the first page
	// whose items are all not newer than Since. Results are newest first.
	Since time.Time
}

// FetchResult is the outcome of FetchTodos.
type FetchResult struct {
	Items []todo.Item
	// NextPage is where the next fetch should resume, "" when the feed was
	// exhausted or incremental mode caught up.
	NextPage string
	// Complete is true when every page from 1 to the end was read in this
	// call, so items missing from Items are no longer pending remotely.
	Complete           bool
	Pages              int
	RateLimitRemaining int
}

// FetchTodos pages through the pending to-do feed.
func (c *Client) FetchTodos(ctx context.Context, opts FetchOptions) (FetchResult, error) {
	perPage := opts.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	perPage = min(perPage, MaxPerPage)

	page := opts.StartPage
	if page == "" {
		page = "1"
	}
	fromStart := page == "1"

	var result FetchResult
	for {
		if opts.PageBudget > 0 && result.Pages >= opts.PageBudget {
			result.NextPage = page
			break
		}

		q := url.Values{}
		q.Set("page", page)
		q.Set("per_page", strconv.Itoa(perPage))

		var raw []apiTodo
		header, err := c.do(ctx, http.MethodGet, "/todos", q, &raw)
		if err != nil {
			return FetchResult{}, fmt.Errorf("fetch todos page %s: %w", page, err)
		}
		result.Pages++

		caughtUp := !opts.Since.IsZero()
		for _, r := range raw {
			item, err := r.toItem()
			if err != nil {
				return FetchResult{}, fmt.Errorf("fetch todos page %s: %w", page, err)
			}
			if item.UpdatedAt.After(opts.Since) {
				caughtUp = false
			}
			result.Items = append(result.Items, item)
		}

		next := nextPage(header, page)
		if next == "" {
			result.Complete = fromStart
			break
		}
		if caughtUp {
			break
		}
		page = next
	}

	result.RateLimitRemaining = c.RateLimitRemaining()
	return result, nil
}

// nextPage reads X-Next-Page, falling back to the Link header.
func nextPage(h http.Header, current string) string {
	if h == nil {
		return ""
	}
	if _, ok := h["X-Next-Page"]; ok {
		next := strings.TrimSpace(h.Get("X-Next-Page"))
		if next == current {
			return ""
		}
		return next
	}
	return linkNextPage(h.Get("Link"))
}

// linkNextPage extracts the page parameter of the rel="next" link.
func linkNextPage(link string) string {
	for _, part := range strings.Split(link, ",") {
		segs := strings.Split(part, ";")
		if len(segs) < 2 {
			continue
		}
		isNext := false
		for _, s := range segs[1:] {
			if strings.TrimSpace(s) == `rel="next"` {
				isNext = true
			}
		}
		if !isNext {
			continue
		}
		raw := strings.Trim(strings.TrimSpace(segs[0]), "<>")
		u, err := url.Parse(raw)
		if err != nil {
			return ""
		}
		return u.Query().Get("page")
	}
	return ""
}

// MarkDone marks a to-do as done. A 404 means the to-do is already resolved
// or gone, which is the intended outcome, so it is not an error.
func (c *Client) MarkDone(ctx context.Context, id string) error {
	path := "/todos/" + url.PathEscape(id) + "/mark_as_done"
	if _, err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		if IsNotFound(err) {
			c.log.Debug().Str("todo_id", id).Msg("mark done: already resolved")
			return nil
		}
		return fmt.Errorf("mark todo %s done: %w", id, err)
	}
	return nil
}

// User is the authenticated GitLab user.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// CurrentUser returns the owner of the token.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	var u User
	if _, err := c.do(ctx, http.MethodGet, "/user", nil, &u); err != nil {
		return User{}, fmt.Errorf("get current user: %w", err)
	}
	if u.Username == "" {
		return User{}, fmt.Errorf("get current user: %w: missing username", ErrMalformed)
	}
	return u, nil
}
