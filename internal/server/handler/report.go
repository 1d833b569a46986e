package handler

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sevigo/codesentry/internal/core"
)

func decodeGateResult(raw string, out *core.GateResult) error {
	return json.Unmarshal([]byte(raw), out)
}

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head><title>CodeSentry Run #{{.Run.ID}}</title></head>
<body>
<h1>Quality Gate Run #{{.Run.ID}}</h1>
<p>Repository {{.Run.RepoID}} — branch {{.Run.Branch}} @ {{.Run.Commit}}</p>
<p>Status: <strong>{{.Run.Status}}</strong>, triggered by {{.Run.TriggeredBy}}</p>
<h2>Checks</h2>
<table border="1" cellpadding="4">
<tr><th>Check</th><th>Passed</th><th>Value</th><th>Threshold</th><th>Message</th></tr>
{{range .Result.Checks}}<tr><td>{{.Name}}</td><td>{{.Passed}}</td><td>{{.Value}}</td><td>{{.Threshold}}</td><td>{{.Message}}</td></tr>
{{end}}
</table>
<p>{{.Result.Summary}}</p>
</body>
</html>
`))

type reportView struct {
	Run    *core.CICDRun
	Result core.GateResult
}

// Report handles GET /report/:run, rendering an HTML summary of one
// persisted CICDRun.
func (a *API) Report(w http.ResponseWriter, r *http.Request) {
	runID, err := strconv.ParseInt(chi.URLParam(r, "run"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	run, err := a.store.GetCICDRun(r.Context(), runID)
	if err != nil {
		writeError(w, statusForErr(err), err)
		return
	}

	var result core.GateResult
	if run.GateResult != "" {
		if decodeErr := decodeGateResult(run.GateResult, &result); decodeErr != nil {
			writeError(w, http.StatusInternalServerError, fmt.Errorf("decode stored gate result: %w", decodeErr))
			return
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := reportTemplate.Execute(w, reportView{Run: run, Result: result}); err != nil {
		a.logger.ErrorContext(r.Context(), "failed to render report", "run_id", runID, "error", err)
	}
}
