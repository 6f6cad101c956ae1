package httpserver

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/radiusdt/campaign-kpi/internal/dashboard"
	"github.com/radiusdt/campaign-kpi/internal/models"
	"github.com/radiusdt/campaign-kpi/internal/service"
	"github.com/radiusdt/campaign-kpi/internal/storage"
)

// ---- Campaigns ----

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := s.services.Campaigns.ListCampaigns(r.Context())
	if err != nil {
		s.serviceError(w, err, "list campaigns")
		return
	}
	s.jsonResponse(w, campaigns)
}

func (s *Server) handleUpsertCampaign(w http.ResponseWriter, r *http.Request) {
	var c models.Campaign
	if !s.decode(w, r, &c) {
		return
	}
	if err := s.services.Campaigns.UpsertCampaign(r.Context(), &c); err != nil {
		s.serviceError(w, err, "save campaign")
		return
	}
	s.jsonStatus(w, http.StatusCreated, c)
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := s.services.Campaigns.GetCampaign(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.serviceError(w, err, "get campaign")
		return
	}
	s.jsonResponse(w, c)
}

func (s *Server) handleRecalculateCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.services.Campaigns.Recalculate(r.Context(), id); err != nil {
		s.serviceError(w, err, "recalculate campaign")
		return
	}
	s.jsonResponse(w, map[string]string{"status": "recalculated", "campaignId": id})
}

// ---- Accounts ----

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	crossbrand, ok := queryBool(r, "crossbrand")
	if !ok {
		s.errorResponse(w, "crossbrand must be true or false", http.StatusBadRequest)
		return
	}
	accounts, err := s.services.Accounts.ListAccounts(r.Context(), crossbrand)
	if err != nil {
		s.serviceError(w, err, "list accounts")
		return
	}
	s.jsonResponse(w, accounts)
}

func (s *Server) handleUpsertAccount(w http.ResponseWriter, r *http.Request) {
	var a models.Account
	if !s.decode(w, r, &a) {
		return
	}
	if err := s.services.Accounts.UpsertAccount(r.Context(), &a); err != nil {
		s.serviceError(w, err, "save account")
		return
	}
	s.jsonStatus(w, http.StatusCreated, a)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	a, err := s.services.Accounts.GetAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.serviceError(w, err, "get account")
		return
	}
	s.jsonResponse(w, a)
}

func (s *Server) handleLinkAccount(w http.ResponseWriter, r *http.Request) {
	campaignID, accountID := chi.URLParam(r, "id"), chi.URLParam(r, "accountID")
	created, err := s.services.Accounts.Link(r.Context(), campaignID, accountID)
	if err != nil {
		s.serviceError(w, err, "link account")
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	s.jsonStatus(w, code, map[string]any{
		"campaignId": campaignID,
		"accountId":  accountID,
		"created":    created,
	})
}

func (s *Server) handleUnlinkAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Accounts.Unlink(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "accountID")); err != nil {
		s.serviceError(w, err, "unlink account")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type gmvRequest struct {
	Value *float64 `json:"value"`
}

func (s *Server) handleSetGMV(w http.ResponseWriter, r *http.Request) {
	var req gmvRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Value == nil {
		s.errorResponse(w, "value is required", http.StatusBadRequest)
		return
	}
	campaignID := chi.URLParam(r, "id")
	row, err := s.services.Accounts.SetGMV(r.Context(), campaignID, chi.URLParam(r, "accountID"), *req.Value)
	if err != nil {
		s.serviceError(w, err, "set gmv")
		return
	}
	s.jsonResponse(w, row)
}

// ---- Posts ----

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	offset, ok := queryInt(r, "offset", 0)
	if !ok {
		s.errorResponse(w, "offset must be a non-negative integer", http.StatusBadRequest)
		return
	}
	limit, ok := queryInt(r, "limit", 100)
	if !ok {
		s.errorResponse(w, "limit must be a non-negative integer", http.StatusBadRequest)
		return
	}
	q := r.URL.Query()
	filter := storage.PostFilter{
		CampaignID: strings.TrimSpace(q.Get("campaign_id")),
		AccountID:  strings.TrimSpace(q.Get("account_id")),
	}
	posts, err := s.services.Posts.ListPosts(r.Context(), filter, offset, limit)
	if err != nil {
		s.serviceError(w, err, "list posts")
		return
	}
	s.jsonResponse(w, posts)
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var p models.Post
	if !s.decode(w, r, &p) {
		return
	}
	if err := s.services.Posts.CreatePost(r.Context(), &p); err != nil {
		s.serviceError(w, err, "create post")
		return
	}
	s.jsonStatus(w, http.StatusCreated, p)
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	p, err := s.services.Posts.GetPost(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.serviceError(w, err, "get post")
		return
	}
	s.jsonResponse(w, p)
}

func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	var p models.Post
	if !s.decode(w, r, &p) {
		return
	}
	if err := s.services.Posts.UpdatePost(r.Context(), chi.URLParam(r, "id"), &p); err != nil {
		s.serviceError(w, err, "update post")
		return
	}
	s.jsonResponse(w, p)
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Posts.DeletePost(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.serviceError(w, err, "delete post")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- KPIs ----

func (s *Server) handleListKPIs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	crossbrand, ok := queryBool(r, "crossbrand")
	if !ok {
		s.errorResponse(w, "crossbrand must be true or false", http.StatusBadRequest)
		return
	}
	query := dashboard.KPIQuery{
		CampaignID: strings.TrimSpace(q.Get("campaign_id")),
		AccountID:  strings.TrimSpace(q.Get("account_id")),
		Crossbrand: crossbrand,
	}
	if raw := strings.TrimSpace(q.Get("category")); raw != "" {
		c, err := models.ParseCategory(raw)
		if err != nil {
			s.serviceError(w, err, "list kpis")
			return
		}
		query.Category = c
	}
	rows, err := s.aggregator.ListKPIs(r.Context(), query)
	if err != nil {
		s.serviceError(w, err, "list kpis")
		return
	}
	s.jsonResponse(w, rows)
}

func (s *Server) handleCreateKPI(w http.ResponseWriter, r *http.Request) {
	var req service.CreateKPIRequest
	if !s.decode(w, r, &req) {
		return
	}
	row, err := s.services.KPIs.CreateKPI(r.Context(), req)
	if err != nil {
		s.serviceError(w, err, "create kpi")
		return
	}
	s.jsonStatus(w, http.StatusCreated, row)
}

type targetRequest struct {
	Target *float64 `json:"target"`
}

func (s *Server) handleUpdateKPITarget(w http.ResponseWriter, r *http.Request) {
	var req targetRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Target == nil {
		s.errorResponse(w, "target is required", http.StatusBadRequest)
		return
	}
	row, err := s.services.KPIs.UpdateTarget(r.Context(), chi.URLParam(r, "id"), *req.Target)
	if err != nil {
		s.serviceError(w, err, "update kpi")
		return
	}
	s.jsonResponse(w, row)
}

func (s *Server) handleDeleteKPI(w http.ResponseWriter, r *http.Request) {
	if err := s.services.KPIs.DeleteKPI(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.serviceError(w, err, "delete kpi")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- Dashboard ----

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.aggregator.AllCampaignsEngagement(r.Context())
	if err != nil {
		s.serviceError(w, err, "load summary")
		return
	}
	s.jsonResponse(w, summary)
}

func (s *Server) handleBatchEngagement(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("campaign_ids")
	if strings.TrimSpace(raw) == "" {
		s.errorResponse(w, "campaign_ids is required", http.StatusBadRequest)
		return
	}
	result, err := s.aggregator.BatchEngagement(r.Context(), strings.Split(raw, ","))
	if err != nil {
		s.serviceError(w, err, "load engagement")
		return
	}
	s.jsonResponse(w, result)
}

func (s *Server) handleCampaignEngagement(w http.ResponseWriter, r *http.Request) {
	e, err := s.aggregator.CampaignEngagement(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.serviceError(w, err, "load engagement")
		return
	}
	s.jsonResponse(w, e)
}

func (s *Server) handleCategoryBreakdown(w http.ResponseWriter, r *http.Request) {
	stats, err := s.aggregator.CategoryBreakdown(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.serviceError(w, err, "load category breakdown")
		return
	}
	s.jsonResponse(w, stats)
}
