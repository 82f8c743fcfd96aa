package httpapp

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/ringgate/ringgate/internal/cab"
	"github.com/ringgate/ringgate/internal/evidence"
	"github.com/ringgate/ringgate/internal/governance"
	"github.com/ringgate/ringgate/internal/risk"
)

const maxBodyBytes = 1 << 20

type modelsResponse struct {
	Default string       `json:"default"`
	Models  []risk.Model `json:"models"`
}

type approveBody struct {
	Approver   string   `json:"approver"`
	Conditions []string `json:"conditions"`
}

type rejectBody struct {
	Approver string `json:"approver"`
	Reason   string `json:"reason"`
}

type exceptionBody struct {
	ExpiryDays int      `json:"expiry_days"`
	Controls   []string `json:"compensating_controls"`
	CreatedBy  string   `json:"created_by"`
}

type exceptionDecisionBody struct {
	Reviewer string `json:"reviewer"`
	Reason   string `json:"reason"`
}

type batchBody struct {
	Evaluations []governance.EvaluateInput `json:"evaluations"`
}

type batchResponse struct {
	Results []governance.Result `json:"results"`
}

type exceptionView struct {
	cab.Exception
	EffectiveStatus cab.ExceptionStatus `json:"effective_status"`
}

type requestView struct {
	cab.Request
	EffectiveStatus cab.Status     `json:"effective_status"`
	Exception       *exceptionView `json:"exception,omitempty"`
}

func (es *EchoServer) handleHealthz(c *echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (es *EchoServer) handleModels(c *echo.Context) error {
	resp := modelsResponse{Default: es.svc.Models.Default()}
	for _, v := range es.svc.Models.Versions() {
		m, err := es.svc.Models.Lookup(v)
		if err != nil {
			return err
		}
		resp.Models = append(resp.Models, m)
	}
	return c.JSON(http.StatusOK, resp)
}

func (es *EchoServer) handleSubmitEvidence(c *echo.Context) error {
	var sub evidence.Submission
	if err := decodeJSON(c, &sub); err != nil {
		return err
	}
	sub.CorrelationID = correlationIDFrom(c)
	rec, err := es.svc.Evidence.Submit(c.Request().Context(), sub)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rec)
}

func (es *EchoServer) handleGetEvidence(c *echo.Context) error {
	rec, err := es.svc.Evidence.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (es *EchoServer) handleAuditTrail(c *echo.Context) error {
	trail, err := es.svc.AuditTrail(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, trail)
}

func (es *EchoServer) handleEvaluate(c *echo.Context) error {
	var in governance.EvaluateInput
	if err := decodeJSON(c, &in); err != nil {
		return err
	}
	in.CandidateID = c.Param("id")
	in.CorrelationID = correlationIDFrom(c)
	v, err := es.svc.EvaluateCandidate(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

func (es *EchoServer) handleEvaluateMany(c *echo.Context) error {
	var body batchBody
	if err := decodeJSON(c, &body); err != nil {
		return err
	}
	corr := correlationIDFrom(c)
	for i := range body.Evaluations {
		if strings.TrimSpace(body.Evaluations[i].CorrelationID) == "" {
			body.Evaluations[i].CorrelationID = corr
		}
	}
	results := es.svc.EvaluateMany(c.Request().Context(), body.Evaluations)
	return c.JSON(http.StatusOK, batchResponse{Results: results})
}

func (es *EchoServer) handleSubmitRequest(c *echo.Context) error {
	var in governance.EvaluateInput
	if err := decodeJSON(c, &in); err != nil {
		return err
	}
	in.CorrelationID = correlationIDFrom(c)
	req, err := es.svc.SubmitRequest(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, es.viewRequest(c, req))
}

func (es *EchoServer) handleGetRequest(c *echo.Context) error {
	req, err := es.svc.CAB.GetRequest(c.Request().Context(), c.Param("id"), correlationIDFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, es.viewRequest(c, req))
}

func (es *EchoServer) handleApprove(c *echo.Context) error {
	var body approveBody
	if err := decodeJSON(c, &body); err != nil {
		return err
	}
	d, err := es.svc.CAB.Approve(c.Request().Context(), cab.ApproveInput{
		RequestID:     c.Param("id"),
		Approver:      body.Approver,
		Conditions:    body.Conditions,
		CorrelationID: correlationIDFrom(c),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (es *EchoServer) handleReject(c *echo.Context) error {
	var body rejectBody
	if err := decodeJSON(c, &body); err != nil {
		return err
	}
	d, err := es.svc.CAB.Reject(c.Request().Context(), cab.RejectInput{
		RequestID:     c.Param("id"),
		Approver:      body.Approver,
		Reason:        body.Reason,
		CorrelationID: correlationIDFrom(c),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (es *EchoServer) handleCreateException(c *echo.Context) error {
	var body exceptionBody
	if err := decodeJSON(c, &body); err != nil {
		return err
	}
	x, err := es.svc.CAB.CreateException(c.Request().Context(), cab.ExceptionInput{
		RequestID:     c.Param("id"),
		ExpiryDays:    body.ExpiryDays,
		Controls:      body.Controls,
		CreatedBy:     body.CreatedBy,
		CorrelationID: correlationIDFrom(c),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, es.viewException(x))
}

func (es *EchoServer) handleGetException(c *echo.Context) error {
	x, err := es.svc.CAB.GetException(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, es.viewException(x))
}

func (es *EchoServer) handleApproveException(c *echo.Context) error {
	return es.decideException(c, true)
}

func (es *EchoServer) handleRejectException(c *echo.Context) error {
	return es.decideException(c, false)
}

func (es *EchoServer) decideException(c *echo.Context, approve bool) error {
	var body exceptionDecisionBody
	if err := decodeJSON(c, &body); err != nil {
		return err
	}
	in := cab.ExceptionDecisionInput{
		ExceptionID:   c.Param("id"),
		Reviewer:      body.Reviewer,
		Reason:        body.Reason,
		CorrelationID: correlationIDFrom(c),
	}
	var (
		d   cab.Decision
		err error
	)
	if approve {
		d, err = es.svc.CAB.ApproveException(c.Request().Context(), in)
	} else {
		d, err = es.svc.CAB.RejectException(c.Request().Context(), in)
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

// viewRequest adds the effective status and the request's exception, if any.
// A failed exception lookup only drops the exception from the view.
func (es *EchoServer) viewRequest(c *echo.Context, req cab.Request) requestView {
	now := es.now()
	view := requestView{Request: req, EffectiveStatus: req.EffectiveStatus(now)}
	x, ok, err := es.svc.CAB.Repo.ExceptionForRequest(c.Request().Context(), req.ID)
	if err != nil {
		c.Logger().Warn("load exception for request failed",
			"correlation_id", correlationIDFrom(c),
			"request_id", req.ID,
			"error", err,
		)
		return view
	}
	if ok {
		xv := es.viewException(x)
		view.Exception = &xv
	}
	return view
}

func (es *EchoServer) viewException(x cab.Exception) exceptionView {
	return exceptionView{Exception: x, EffectiveStatus: x.EffectiveStatus(es.now())}
}

func (es *EchoServer) now() time.Time {
	if es.svc.CAB != nil && es.svc.CAB.Now != nil {
		return es.svc.CAB.Now()
	}
	return time.Now().UTC()
}

// decodeJSON reads a single JSON document, rejecting unknown fields.
func decodeJSON(c *echo.Context, dst any) error {
	dec := json.NewDecoder(io.LimitReader(c.Request().Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &decodeError{err: errors.New("request body is empty")}
		}
		return &decodeError{err: err}
	}
	if dec.More() {
		return &decodeError{err: errors.New("request body must contain a single JSON document")}
	}
	return nil
}
