package api

import (
	"net/http"
	"strings"

	"jobtracker/internal/analytics"
	"jobtracker/internal/errors"
	"jobtracker/internal/jobs"
	"jobtracker/internal/models"
	"jobtracker/internal/pipeline"
	"jobtracker/internal/posting"
	"jobtracker/internal/view"
)

type listResponse struct {
	Buckets []view.Bucket `json:"buckets"`
	Total   int           `json:"total"`
	Shown   int           `json:"shown"`
	Version uint64        `json:"version"`
	Loading bool          `json:"loading"`
	Failed  *jobs.Record  `json:"failed,omitempty"`
	Error   string        `json:"error,omitempty"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type ratingRequest struct {
	Rating int `json:"rating"`
}

type parseRequest struct {
	Text string `json:"text"`
}

// store resolves the signed-in user's job store. A failed first load is
// reported to the caller.
func (s *Server) store(w http.ResponseWriter, r *http.Request) (*jobs.Store, bool) {
	st, err := s.stores.Get(r.Context(), sessionFrom(r.Context()).UserID)
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return st, true
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("refresh") == "true" {
		if err := st.Load(r.Context()); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	snap := st.Snapshot()
	all := snap.Jobs()
	buckets := view.Project(all, view.ParseQuery(r.URL.Query()))
	shown := 0
	for _, b := range buckets {
		shown += len(b.Jobs)
	}
	resp := listResponse{
		Buckets: buckets,
		Total:   len(all),
		Shown:   shown,
		Version: snap.Version,
		Loading: snap.Loading,
		Failed:  snap.Failed,
	}
	if snap.Err != nil {
		resp.Error = errors.MessageOf(snap.Err)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}
	job, found := st.Get(r.PathValue("id"))
	if !found {
		s.writeError(w, r, errors.NotFound("job not found", nil))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job":    job,
		"stage":  pipeline.Describe(job.Status),
		"salary": analytics.FormatSalaryRange(job.SalaryMin, job.SalaryMax),
	})
}

func (s *Server) handleAddJob(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}
	var form models.JobForm
	if err := decodeJSON(r, &form); err != nil {
		s.writeError(w, r, err)
		return
	}
	draft, err := form.Draft()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	job, err := st.Add(r.Context(), draft)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

// handleParsePosting prefills an add form from pasted posting text. Nothing
// is saved.
func (s *Server) handleParsePosting(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.writeError(w, r, errors.Validation("nothing to parse", map[string]string{"text": "is required"}))
		return
	}
	writeJSON(w, http.StatusOK, posting.Parse(req.Text))
}

// handleUpdateJob replaces every editable field of the job with the
// submitted form.
func (s *Server) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}
	current, found := st.Get(r.PathValue("id"))
	if !found {
		s.writeError(w, r, errors.NotFound("job not found", nil))
		return
	}
	var form models.JobForm
	if err := decodeJSON(r, &form); err != nil {
		s.writeError(w, r, err)
		return
	}
	draft, err := form.Draft()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	job, err := st.Update(r.Context(), current.Apply(draft))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if _, found := st.Get(id); !found {
		s.writeError(w, r, errors.NotFound("job not found", nil))
		return
	}
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	status, known := pipeline.Parse(req.Status)
	if !known || req.Status == "" {
		s.writeError(w, r, errors.Validation("invalid status", map[string]string{"status": "unknown status " + req.Status}))
		return
	}
	job, err := st.SetStatus(r.Context(), id, status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleSetRating(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if _, found := st.Get(id); !found {
		s.writeError(w, r, errors.NotFound("job not found", nil))
		return
	}
	var req ratingRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	job, err := st.SetRating(r.Context(), id, req.Rating)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleRemoveJob(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}
	if err := st.Remove(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type analyticsResponse struct {
	analytics.Report
	AverageSalary  string `json:"average_salary_display"`
	ConversionRate string `json:"conversion_rate_display"`
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}
	all := st.Snapshot().Jobs()
	report := analytics.Compute(all)
	if r.URL.Query().Get("fill") == "true" {
		report.Timeline = analytics.FilledTimeline(all)
	}
	writeJSON(w, http.StatusOK, analyticsResponse{
		Report:         report,
		AverageSalary:  report.Summary.FormatAverageSalary(),
		ConversionRate: report.Summary.FormatConversionRate(),
	})
}
