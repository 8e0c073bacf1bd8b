package web

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/tigerwatch/internal/api"
	"github.com/sweeney/tigerwatch/internal/confidence"
	"github.com/sweeney/tigerwatch/internal/status"
)

var funcs = template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"when": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format("2006-01-02 15:04")
	},
	"level":   func(score float64) string { return confidence.Classify(score).Label() },
	"percent": confidence.Percent,
	"scoreStyle": func(score float64) template.CSS {
		return paletteCSS(confidence.ScoreColors(score))
	},
	"statusStyle": func(s string) template.CSS {
		return paletteCSS(confidence.StatusColors(s))
	},
	"modelStyle": func(m string) template.CSS {
		return paletteCSS(confidence.ModelColors(m))
	},
	"progress": func(p float64) string {
		return strconv.FormatFloat(p, 'f', 0, 64) + "%"
	},
	"pageURL": func(q api.ListOptions, page int) string {
		v := url.Values{}
		if q.Search != "" {
			v.Set("q", q.Search)
		}
		if q.Status != "" {
			v.Set("status", q.Status)
		}
		v.Set("page", strconv.Itoa(page))
		return "?" + v.Encode()
	},
	"add": func(a, b int) int { return a + b },
}

func paletteCSS(p confidence.Palette) template.CSS {
	return template.CSS(fmt.Sprintf("color:%s;background:%s;border:1px solid %s", p.Foreground, p.Background, p.Border))
}

// view is the data handed to every page.
type view struct {
	Title  string
	Status status.Snapshot
	Body   any
}

var layout = template.Must(template.New("layout").Funcs(funcs).Parse(layoutHTML))

func page(body string) *template.Template {
	return template.Must(template.Must(layout.Clone()).Parse(body))
}

var (
	dashboardPage      = page(dashboardHTML)
	investigationsPage = page(investigationsHTML)
	investigationPage  = page(investigationHTML)
	tigersPage         = page(tigersHTML)
	tigerPage          = page(tigerHTML)
	facilitiesPage     = page(facilitiesHTML)
	facilityPage       = page(facilityHTML)
	verificationPage   = page(verificationHTML)
	analyticsPage      = page(analyticsHTML)
	loginPage          = page(loginHTML)
	errorPage          = page(errorHTML)
)

func (s *Server) render(w http.ResponseWriter, r *http.Request, t *template.Template, title string, body any) {
	s.renderStatus(w, r, http.StatusOK, t, title, body)
}

func (s *Server) renderStatus(w http.ResponseWriter, r *http.Request, code int, t *template.Template, title string, body any) {
	v := view{Title: title, Body: body}
	if s.tracker != nil {
		v.Status = s.tracker.Snapshot()
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", v); err != nil {
		s.logger.Error("render", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	buf.WriteTo(w)
}

func (s *Server) renderError(w http.ResponseWriter, code int, msg string) {
	var buf bytes.Buffer
	errorPage.ExecuteTemplate(&buf, "layout", view{Title: http.StatusText(code), Body: msg})
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	buf.WriteTo(w)
}

const layoutHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}} - Tigerwatch</title>
<style>
body { font-family: monospace; max-width: 960px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
nav a { margin-right: 1em; }
nav form { display: inline; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.badge { padding: 1px 6px; border-radius: 4px; }
.connected { color: green; }
.disconnected { color: red; }
.error { color: #991B1B; }
</style>
</head>
<body>
<nav>
<a href="/">Dashboard</a>
<a href="/investigations">Investigations</a>
<a href="/tigers">Tigers</a>
<a href="/facilities">Facilities</a>
<a href="/verification">Verification</a>
<a href="/analytics">Analytics</a>
{{if .Status.Authenticated}}<form method="post" action="/logout"><button>Sign out{{with .Status.Subject}} {{.}}{{end}}</button></form>{{end}}
</nav>
<h1>{{.Title}}</h1>
{{template "content" .Body}}
</body>
</html>
{{define "pager"}}{{if gt .Result.Pages 1}}<p>
{{if gt .Result.Page 1}}<a href="{{pageURL .Query (add .Result.Page -1)}}">previous</a>{{end}}
page {{.Result.Page}} of {{.Result.Pages}}
{{if lt .Result.Page .Result.Pages}}<a href="{{pageURL .Query (add .Result.Page 1)}}">next</a>{{end}}
</p>{{end}}{{end}}
{{define "filter"}}<form method="get">
<input type="search" name="q" value="{{.Search}}" placeholder="search">
<input type="text" name="status" value="{{.Status}}" placeholder="status">
<button>Filter</button>
</form>{{end}}
`

const dashboardHTML = `{{define "content"}}
<h2>Summary</h2>
{{with .Summary}}<table>
<tr><th>Investigations</th><td>{{.TotalInvestigations}} ({{.ActiveInvestigations}} active)</td></tr>
<tr><th>Tigers</th><td>{{.TotalTigers}} ({{.IdentifiedTigers}} identified)</td></tr>
<tr><th>Facilities</th><td>{{.TotalFacilities}}</td></tr>
<tr><th>Pending verifications</th><td>{{.PendingVerifications}}</td></tr>
<tr><th>Average confidence</th><td><span class="badge" style="{{scoreStyle .AverageConfidence}}">{{percent .AverageConfidence}}</span></td></tr>
</table>{{else}}<p class="error">Summary unavailable: {{.SummaryError}}</p>{{end}}

<h2>Investigations in progress</h2>
{{if .Feed.Investigations}}<table>
<tr><th>Investigation</th><th>Status</th><th>Progress</th><th>Approvals</th><th>Updated</th></tr>
{{range .Feed.Investigations}}<tr>
<td><a href="/investigations/{{.InvestigationID}}">{{or .Title .InvestigationID}}</a></td>
<td><span class="badge" style="{{statusStyle .Status}}">{{.Status}}</span></td>
<td>{{progress .Percent}}</td>
<td>{{len .PendingApprovals}}</td>
<td>{{when .UpdatedAt}}</td>
</tr>{{end}}
</table>{{else}}<p>No live investigations.</p>{{end}}

<h2>Recent activity</h2>
{{if .Feed.Recent}}<table id="activity">
{{range .Feed.Recent}}<tr><td>{{when .Time}}</td><td>{{.Type}}</td><td>{{.Agent}}</td><td>{{.Message}}</td></tr>{{end}}
</table>{{else}}<p>No activity yet.</p>{{end}}
<p><a href="/activity.json">JSON</a> <a href="/index.json">status</a></p>
{{end}}`

const investigationsHTML = `{{define "content"}}
{{template "filter" .Query}}
<table>
<tr><th>Title</th><th>Status</th><th>Priority</th><th>Assigned</th><th>Updated</th></tr>
{{range .Result.Data}}<tr>
<td><a href="/investigations/{{.ID}}">{{.Title}}</a></td>
<td><span class="badge" style="{{statusStyle .Status}}">{{.Status}}</span></td>
<td>{{.Priority}}</td>
<td>{{.AssignedTo}}</td>
<td>{{when .UpdatedAt}}</td>
</tr>{{else}}<tr><td colspan="5">No investigations found.</td></tr>{{end}}
</table>
{{template "pager" .}}
{{end}}`

const investigationHTML = `{{define "content"}}
{{with .Investigation}}<table>
<tr><th>Status</th><td><span class="badge" style="{{statusStyle .Status}}">{{.Status}}</span></td></tr>
<tr><th>Priority</th><td>{{.Priority}}</td></tr>
<tr><th>Assigned</th><td>{{.AssignedTo}}</td></tr>
<tr><th>Created</th><td>{{when .CreatedAt}}</td></tr>
</table>
<p>{{.Description}}</p>{{end}}

{{with .Progress}}
<h2>Assistant</h2>
<p>{{.Status}}, {{progress .Percent}}{{with .Summary}}: {{.}}{{end}}</p>
{{if .PendingApprovals}}<h3>Awaiting approval</h3>
<table>
{{range .PendingApprovals}}<tr>
<td>{{.Agent}}</td><td>{{.Action}}</td><td>{{.Description}}</td>
<td><form method="post" action="/investigations/{{.InvestigationID}}/approvals/{{.ApprovalID}}"><button>Approve</button></form></td>
</tr>{{end}}
</table>{{end}}
{{if .Identified}}<h3>Identified tigers</h3>
<table>
{{range .Identified}}<tr>
<td><a href="/tigers/{{.TigerID}}">{{or .TigerName .TigerID}}</a></td>
<td><span class="badge" style="{{scoreStyle .Confidence}}">{{percent .Confidence}} {{level .Confidence}}</span></td>
<td><span class="badge" style="{{modelStyle .Model}}">{{.Model}}</span></td>
</tr>{{end}}
</table>{{end}}
{{if .Activity}}<h3>Activity</h3>
<table>
{{range .Activity}}<tr><td>{{when .Time}}</td><td>{{.Agent}}</td><td>{{.Message}}</td></tr>{{end}}
</table>{{end}}
{{end}}

<h2>Annotations</h2>
<table>
{{range .Annotations}}<tr><td>{{when .CreatedAt}}</td><td>{{.Author}}</td><td>{{.Body}}</td></tr>{{else}}<tr><td>No annotations.</td></tr>{{end}}
</table>
<form method="post" action="/investigations/{{.Investigation.ID}}/annotations">
<textarea name="body" rows="3" cols="60"></textarea>
<button>Add note</button>
</form>
{{end}}`

const tigersHTML = `{{define "content"}}
{{template "filter" .Query}}
<table>
<tr><th>Name</th><th>Status</th><th>Confidence</th><th>Model</th><th>Last seen</th></tr>
{{range .Result.Data}}<tr>
<td><a href="/tigers/{{.ID}}">{{.Name}}</a></td>
<td><span class="badge" style="{{statusStyle .Status}}">{{.Status}}</span></td>
<td><span class="badge" style="{{scoreStyle .Confidence}}">{{percent .Confidence}}</span></td>
<td><span class="badge" style="{{modelStyle .Model}}">{{.Model}}</span></td>
<td>{{when .LastSeen}}</td>
</tr>{{else}}<tr><td colspan="5">No tigers found.</td></tr>{{end}}
</table>
{{template "pager" .}}
{{end}}`

const tigerHTML = `{{define "content"}}
<table>
<tr><th>Status</th><td><span class="badge" style="{{statusStyle .Status}}">{{.Status}}</span></td></tr>
<tr><th>Confidence</th><td><span id="confidence" class="badge" style="{{scoreStyle .Confidence}}">{{percent .Confidence}} {{level .Confidence}}</span></td></tr>
<tr><th>Model</th><td><span class="badge" style="{{modelStyle .Model}}">{{.Model}}</span></td></tr>
{{with .FacilityID}}<tr><th>Facility</th><td><a href="/facilities/{{.}}">{{.}}</a></td></tr>{{end}}
<tr><th>Last seen</th><td>{{when .LastSeen}}</td></tr>
</table>
{{with .ImageURL}}<img src="{{.}}" alt="tiger" width="320">{{end}}
{{end}}`

const facilitiesHTML = `{{define "content"}}
{{template "filter" .Query}}
<table>
<tr><th>Name</th><th>Location</th><th>License</th><th>Risk</th><th>Tigers</th></tr>
{{range .Result.Data}}<tr>
<td><a href="/facilities/{{.ID}}">{{.Name}}</a></td>
<td>{{.Location}}{{with .Country}}, {{.}}{{end}}</td>
<td>{{.LicenseStatus}}</td>
<td>{{.RiskLevel}}</td>
<td>{{.TigerCount}}</td>
</tr>{{else}}<tr><td colspan="5">No facilities found.</td></tr>{{end}}
</table>
{{template "pager" .}}
{{end}}`

const facilityHTML = `{{define "content"}}
<table>
<tr><th>Location</th><td>{{.Location}}{{with .Country}}, {{.}}{{end}}</td></tr>
<tr><th>License</th><td>{{.LicenseStatus}}</td></tr>
<tr><th>Risk</th><td>{{.RiskLevel}}</td></tr>
<tr><th>Tigers</th><td>{{.TigerCount}}</td></tr>
</table>
{{end}}`

const verificationHTML = `{{define "content"}}
{{template "filter" .Query}}
<table>
<tr><th>Tiger</th><th>Confidence</th><th>Model</th><th>Status</th><th>Submitted</th><th></th></tr>
{{range .Result.Data}}<tr>
<td><a href="/tigers/{{.TigerID}}">{{.TigerID}}</a></td>
<td><span class="badge" style="{{scoreStyle .Confidence}}">{{percent .Confidence}} {{level .Confidence}}</span></td>
<td><span class="badge" style="{{modelStyle .Model}}">{{.Model}}</span></td>
<td><span class="badge" style="{{statusStyle .Status}}">{{.Status}}</span></td>
<td>{{when .SubmittedAt}}</td>
<td>
<form method="post" action="/verification/{{.ID}}/approve"><button>Approve</button></form>
<form method="post" action="/verification/{{.ID}}/reject"><input type="text" name="reason" placeholder="reason"><button>Reject</button></form>
</td>
</tr>{{else}}<tr><td colspan="6">Queue is empty.</td></tr>{{end}}
</table>
{{template "pager" .}}
{{end}}`

const analyticsHTML = `{{define "content"}}
{{with .Summary}}<table>
<tr><th>Investigations</th><td>{{.TotalInvestigations}}</td></tr>
<tr><th>Active</th><td>{{.ActiveInvestigations}}</td></tr>
<tr><th>Tigers</th><td>{{.TotalTigers}}</td></tr>
<tr><th>Identified</th><td>{{.IdentifiedTigers}}</td></tr>
<tr><th>Facilities</th><td>{{.TotalFacilities}}</td></tr>
<tr><th>Pending verifications</th><td>{{.PendingVerifications}}</td></tr>
<tr><th>Average confidence</th><td><span class="badge" style="{{scoreStyle .AverageConfidence}}">{{percent .AverageConfidence}} {{level .AverageConfidence}}</span></td></tr>
</table>
{{if .ByStatus}}<h2>By status</h2>
<table>
{{range $status, $n := .ByStatus}}<tr><th><span class="badge" style="{{statusStyle $status}}">{{$status}}</span></th><td>{{$n}}</td></tr>{{end}}
</table>{{end}}{{end}}

<h2>Live events</h2>
<table>
<tr><th>Created</th><td>{{.Counts.InvestigationCreated}}</td></tr>
<tr><th>Agent activity</th><td>{{.Counts.AgentActivity}}</td></tr>
<tr><th>Approvals requested</th><td>{{.Counts.ApprovalRequired}}</td></tr>
<tr><th>Tigers identified</th><td>{{.Counts.TigerIdentified}}</td></tr>
<tr><th>Completed</th><td>{{.Counts.InvestigationCompleted}}</td></tr>
</table>

<h2>Integrations</h2>
<table>
{{range .Integrations}}<tr>
<td>{{.Name}}</td>
<td>{{if .Enabled}}enabled{{else}}disabled{{end}}</td>
<td><span class="badge" style="{{statusStyle .Status}}">{{.Status}}</span></td>
<td>{{when .LastSync}}</td>
<td><form method="post" action="/integrations/{{.Name}}/sync"><button>Sync</button></form></td>
</tr>{{else}}<tr><td>No integrations configured.</td></tr>{{end}}
</table>
{{end}}`

const loginHTML = `{{define "content"}}
{{with .Error}}<p class="error">{{.}}</p>{{end}}
<form method="post" action="/login">
<input type="hidden" name="next" value="{{.Next}}">
<label>API token <input type="password" name="token" size="60" autofocus></label>
<button>Sign in</button>
</form>
{{end}}`

const errorHTML = `{{define "content"}}<p class="error">{{.}}</p><p><a href="/">Back to dashboard</a></p>{{end}}`
