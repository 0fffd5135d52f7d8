// File: internal/plan/templates.go
package plan

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/jeffcmilberger/openclaw-browser-guard/api/schemas"
)

// TemplateOptions tunes template instantiation.
type TemplateOptions struct {
	// ExtraTargets are appended to the extraction node's targets.
	ExtraTargets []schemas.ExtractionTarget
}

// Failure-mode conditions every template pre-enumerates. Plans are built
// before any untrusted content is seen, so the common ways a page can go
// sideways must already be branches.
var (
	cond404 = schemas.BranchCondition{
		Type: schemas.CondContentMatch, Value: `404|page not found`,
		Description: "page missing",
	}
	condLoginRequired = schemas.BranchCondition{
		Type: schemas.CondContentMatch, Value: `403|log in to continue|login required|sign in to continue`,
		Description: "login required",
	}
	condCaptcha = schemas.BranchCondition{
		Type: schemas.CondContentMatch, Value: `captcha|verify you are human`,
		Description: "captcha challenge",
	}
	condCookieBanner = schemas.BranchCondition{
		Type: schemas.CondElementPresent, Value: `[id*=cookie]`,
		Description: "cookie banner shown",
	}
	condRateLimit = schemas.BranchCondition{
		Type: schemas.CondContentMatch, Value: `rate limit|too many requests|429`,
		Description: "rate limited",
	}
	condNoResults = schemas.BranchCondition{
		Type: schemas.CondContentMatch, Value: `no results|nothing found|0 results`,
		Description: "no results",
	}
	condDefault = schemas.BranchCondition{Type: schemas.CondDefault, Description: "otherwise"}
)

// BuildTemplate instantiates the template for the intent's task type. The
// result always passes Validate for a valid intent.
func BuildTemplate(in *schemas.Intent, opts TemplateOptions) *schemas.DAG {
	t := &templateBuilder{
		dag: &schemas.DAG{
			ID:        uuid.NewString(),
			Intent:    in,
			CreatedAt: time.Now().UTC(),
		},
		intent: in,
	}

	switch in.TaskType {
	case schemas.TaskSearch:
		t.buildSearch(opts)
	case schemas.TaskExtract:
		t.buildExtract(opts)
	case schemas.TaskMonitor:
		t.buildMonitor(opts)
	case schemas.TaskInteract:
		t.buildInteract(opts)
	case schemas.TaskPurchase:
		t.buildPurchase(opts)
	case schemas.TaskLogin:
		t.buildLogin()
	}

	FinalizeDomains(t.dag, in)
	return t.dag
}

// FinalizeDomains stamps every node with the intent's domain constraint.
// This runs on every plan regardless of origin: the core, not the planner
// strategy, owns domain confinement.
func FinalizeDomains(d *schemas.DAG, in *schemas.Intent) {
	for i := range d.Nodes {
		constraints := d.Nodes[i].Constraints[:0]
		for _, c := range d.Nodes[i].Constraints {
			if c.Type != schemas.ConstraintDomain {
				constraints = append(constraints, c)
			}
		}
		constraints = append(constraints, schemas.Constraint{
			Type:    schemas.ConstraintDomain,
			Domains: append([]string(nil), in.AllowedDomains...),
		})
		d.Nodes[i].Constraints = constraints
	}
	d.Intent = in
}

type templateBuilder struct {
	dag    *schemas.DAG
	intent *schemas.Intent
}

func (t *templateBuilder) primaryURL() string {
	return "https://" + t.intent.AllowedDomains[0]
}

func (t *templateBuilder) node(id string, n schemas.Node) string {
	n.ID = id
	if n.ExpectedOutcomes == nil {
		n.ExpectedOutcomes = []schemas.ExpectedOutcome{}
	}
	if n.Constraints == nil {
		n.Constraints = []schemas.Constraint{}
	}
	t.dag.Nodes = append(t.dag.Nodes, n)
	return id
}

func (t *templateBuilder) terminal(id string, result schemas.TerminalResult, desc string) string {
	return t.node(id, schemas.Node{
		Action:         schemas.BrowserAction{Type: schemas.ActionWait, Value: "0", Description: desc},
		IsTerminal:     true,
		TerminalResult: result,
	})
}

func (t *templateBuilder) edge(from, to string, cond schemas.BranchCondition, priority int) {
	t.dag.Edges = append(t.dag.Edges, schemas.Edge{From: from, To: to, Condition: cond, Priority: priority})
}

// failureEdges wires the shared failure branches out of a node. dismiss is
// the id of a cookie-banner handler, or "" to skip that branch.
func (t *templateBuilder) failureEdges(from, dismiss string) {
	t.edge(from, "fail_not_found", cond404, 0)
	t.edge(from, "fail_login_required", condLoginRequired, 1)
	t.edge(from, "fail_captcha", condCaptcha, 2)
	t.edge(from, "fail_rate_limit", condRateLimit, 3)
	if dismiss != "" {
		t.edge(from, dismiss, condCookieBanner, 4)
	}
}

func (t *templateBuilder) failureTerminals() {
	t.terminal("fail_not_found", schemas.TerminalError, "stop: page not found")
	t.terminal("fail_login_required", schemas.TerminalAbort, "stop: page requires login")
	t.terminal("fail_captcha", schemas.TerminalAbort, "stop: captcha challenge")
	t.terminal("fail_rate_limit", schemas.TerminalError, "stop: rate limited")
}

func (t *templateBuilder) extractionTargets(opts TemplateOptions) []schemas.ExtractionTarget {
	targets := []schemas.ExtractionTarget{
		{Name: "title", Selector: "h1"},
		{Name: "content", Selector: "main"},
	}
	return append(targets, opts.ExtraTargets...)
}

func (t *templateBuilder) buildSearch(opts TemplateOptions) {
	entry := t.node("open_site", schemas.Node{
		Action: schemas.BrowserAction{
			Type: schemas.ActionNavigate, Target: t.primaryURL(),
			Description: fmt.Sprintf("open %s", t.intent.AllowedDomains[0]),
		},
		ExpectedOutcomes: []schemas.ExpectedOutcome{
			{Type: schemas.CondURLMatch, Value: domainPattern(t.intent.AllowedDomains[0]), Required: true, Description: "landed on the site"},
		},
	})
	t.dag.EntryPoint = entry

	t.node("dismiss_cookies", schemas.Node{
		Action: schemas.BrowserAction{
			Type: schemas.ActionClick, Target: `[id*=cookie] button`,
			Description: "dismiss the cookie banner",
		},
	})
	t.node("enter_query", schemas.Node{
		Action: schemas.BrowserAction{
			Type: schemas.ActionTypeText, Target: `input[type=search]`, Value: t.intent.Goal,
			Description: "enter the search query",
		},
	})
	t.node("run_search", schemas.Node{
		Action: schemas.BrowserAction{
			Type: schemas.ActionClick, Target: `button[type=submit]`,
			Description: "run the search",
		},
	})
	t.node("collect_results", schemas.Node{
		Action:            schemas.BrowserAction{Type: schemas.ActionExtract, Description: "collect search results"},
		ExtractionTargets: t.extractionTargets(opts),
	})
	t.terminal("done", schemas.TerminalSuccess, "finish: results collected")
	t.terminal("no_results", schemas.TerminalError, "stop: search returned nothing")
	t.failureTerminals()

	t.failureEdges("open_site", "dismiss_cookies")
	t.edge("open_site", "enter_query", condDefault, 10)
	t.edge("dismiss_cookies", "enter_query", condDefault, 10)
	t.edge("enter_query", "run_search", condDefault, 10)
	t.edge("run_search", "no_results", condNoResults, 0)
	t.edge("run_search", "fail_rate_limit", condRateLimit, 1)
	t.edge("run_search", "collect_results", condDefault, 10)
	t.edge("collect_results", "done", condDefault, 10)
}

func (t *templateBuilder) buildExtract(opts TemplateOptions) {
	entry := t.node("open_page", schemas.Node{
		Action: schemas.BrowserAction{
			Type: schemas.ActionNavigate, Target: t.primaryURL(),
			Description: fmt.Sprintf("open %s", t.intent.AllowedDomains[0]),
		},
		ExpectedOutcomes: []schemas.ExpectedOutcome{
			{Type: schemas.CondURLMatch, Value: domainPattern(t.intent.AllowedDomains[0]), Required: true, Description: "landed on the site"},
		},
	})
	t.dag.EntryPoint = entry

	t.node("scroll_page", schemas.Node{
		Action: schemas.BrowserAction{Type: schemas.ActionScroll, Target: "down", Value: "1000", Description: "scroll the page into view"},
	})
	t.node("extract_content", schemas.Node{
		Action:            schemas.BrowserAction{Type: schemas.ActionExtract, Description: "extract page content"},
		ExtractionTargets: t.extractionTargets(opts),
	})
	t.terminal("done", schemas.TerminalSuccess, "finish: content extracted")
	t.failureTerminals()

	t.failureEdges("open_page", "")
	t.edge("open_page", "scroll_page", condDefault, 10)
	t.edge("scroll_page", "extract_content", condDefault, 10)
	t.edge("extract_content", "done", condDefault, 10)
}

func (t *templateBuilder) buildMonitor(opts TemplateOptions) {
	entry := t.node("open_page", schemas.Node{
		Action: schemas.BrowserAction{
			Type: schemas.ActionNavigate, Target: t.primaryURL(),
			Description: fmt.Sprintf("open %s", t.intent.AllowedDomains[0]),
		},
	})
	t.dag.EntryPoint = entry

	t.node("first_read", schemas.Node{
		Action:            schemas.BrowserAction{Type: schemas.ActionExtract, Description: "take the first reading"},
		ExtractionTargets: t.extractionTargets(opts),
	})
	t.node("settle", schemas.Node{
		Action: schemas.BrowserAction{Type: schemas.ActionWait, Value: "5000", Description: "wait for the page to change"},
	})
	t.node("second_read", schemas.Node{
		Action:            schemas.BrowserAction{Type: schemas.ActionExtract, Description: "take the second reading"},
		ExtractionTargets: t.extractionTargets(opts),
	})
	t.terminal("done", schemas.TerminalSuccess, "finish: readings collected")
	t.failureTerminals()

	t.failureEdges("open_page", "")
	t.edge("open_page", "first_read", condDefault, 10)
	t.edge("first_read", "settle", condDefault, 10)
	t.edge("settle", "second_read", condDefault, 10)
	t.edge("second_read", "done", condDefault, 10)
}

func (t *templateBuilder) buildInteract(opts TemplateOptions) {
	entry := t.node("open_page", schemas.Node{
		Action: schemas.BrowserAction{
			Type: schemas.ActionNavigate, Target: t.primaryURL(),
			Description: fmt.Sprintf("open %s", t.intent.AllowedDomains[0]),
		},
	})
	t.dag.EntryPoint = entry

	t.node("open_target", schemas.Node{
		Action: schemas.BrowserAction{Type: schemas.ActionClick, Target: "a", Description: "open the element of interest"},
	})
	t.node("fill_field", schemas.Node{
		Action: schemas.BrowserAction{Type: schemas.ActionTypeText, Target: "input", Value: t.intent.Goal, Description: "fill in the field"},
	})
	t.node("read_back", schemas.Node{
		Action:            schemas.BrowserAction{Type: schemas.ActionExtract, Description: "read the result back"},
		ExtractionTargets: t.extractionTargets(opts),
	})
	t.terminal("done", schemas.TerminalSuccess, "finish: interaction complete")
	t.failureTerminals()

	t.failureEdges("open_page", "")
	t.edge("open_page", "open_target", condDefault, 10)
	t.edge("open_target", "fill_field", condDefault, 10)
	t.edge("fill_field", "read_back", condDefault, 10)
	t.edge("read_back", "done", condDefault, 10)
}

func (t *templateBuilder) buildPurchase(opts TemplateOptions) {
	entry := t.node("open_store", schemas.Node{
		Action: schemas.BrowserAction{
			Type: schemas.ActionNavigate, Target: t.primaryURL(),
			Description: fmt.Sprintf("open %s", t.intent.AllowedDomains[0]),
		},
	})
	t.dag.EntryPoint = entry

	t.node("find_item", schemas.Node{
		Action: schemas.BrowserAction{Type: schemas.ActionTypeText, Target: `input[type=search]`, Value: t.intent.Goal, Description: "search for the item"},
	})
	t.node("open_item", schemas.Node{
		Action: schemas.BrowserAction{Type: schemas.ActionClick, Target: ".product a", Description: "open the item page"},
	})
	t.node("read_price", schemas.Node{
		Action:            schemas.BrowserAction{Type: schemas.ActionExtract, Description: "read the item details"},
		ExtractionTargets: append(t.extractionTargets(opts), schemas.ExtractionTarget{Name: "price", Selector: ".price"}),
	})
	t.node("add_to_cart", schemas.Node{
		Action: schemas.BrowserAction{Type: schemas.ActionClick, Target: `button[name=add-to-cart]`, Description: "add the item to the cart"},
	})
	// Checkout stops here. Committing money is always a human decision; the
	// plan ends before any payment control is touched.
	t.terminal("await_payment", schemas.TerminalAbort, "stop: payment requires the user")
	t.terminal("done", schemas.TerminalSuccess, "finish: item in cart")
	t.terminal("out_of_stock", schemas.TerminalError, "stop: item unavailable")
	t.failureTerminals()

	t.failureEdges("open_store", "")
	t.edge("open_store", "find_item", condDefault, 10)
	t.edge("find_item", "open_item", condDefault, 10)
	t.edge("open_item", "out_of_stock", schemas.BranchCondition{
		Type: schemas.CondContentMatch, Value: `out of stock|sold out`, Description: "item unavailable",
	}, 0)
	t.edge("open_item", "read_price", condDefault, 10)
	t.edge("read_price", "add_to_cart", condDefault, 10)
	t.edge("add_to_cart", "await_payment", schemas.BranchCondition{
		Type: schemas.CondContentMatch, Value: `checkout|payment`, Description: "checkout flow started",
	}, 0)
	t.edge("add_to_cart", "done", condDefault, 10)
}

func (t *templateBuilder) buildLogin() {
	entry := t.node("open_login", schemas.Node{
		Action: schemas.BrowserAction{
			Type: schemas.ActionNavigate, Target: t.primaryURL() + "/login",
			Description: fmt.Sprintf("open the %s login page", t.intent.AllowedDomains[0]),
		},
		ExpectedOutcomes: []schemas.ExpectedOutcome{
			{Type: schemas.CondElementPresent, Value: `input[type=password]`, Required: true, Description: "login form shown"},
		},
	})
	t.dag.EntryPoint = entry

	t.node("enter_username", schemas.Node{
		Action: schemas.BrowserAction{Type: schemas.ActionTypeText, Target: `input[name=username]`, Description: "enter the username"},
	})
	t.node("enter_password", schemas.Node{
		Action: schemas.BrowserAction{Type: schemas.ActionTypeText, Target: `input[type=password]`, Description: "enter the password"},
	})
	t.node("submit_login", schemas.Node{
		Action: schemas.BrowserAction{Type: schemas.ActionClick, Target: `button[type=submit]`, Description: "submit the login form"},
	})
	t.terminal("done", schemas.TerminalSuccess, "finish: signed in")
	t.terminal("bad_credentials", schemas.TerminalError, "stop: credentials rejected")
	t.failureTerminals()

	t.failureEdges("open_login", "")
	t.edge("open_login", "enter_username", condDefault, 10)
	t.edge("enter_username", "enter_password", condDefault, 10)
	t.edge("enter_password", "submit_login", condDefault, 10)
	t.edge("submit_login", "bad_credentials", schemas.BranchCondition{
		Type: schemas.CondContentMatch, Value: `incorrect|invalid (username|password)|try again`, Description: "credentials rejected",
	}, 0)
	t.edge("submit_login", "done", condDefault, 10)
}

// domainPattern builds a url_match value for a hostname.
func domainPattern(domain string) string {
	return `https?://([a-z0-9-]+\.)*` + regexp.QuoteMeta(domain)
}
