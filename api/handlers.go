package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"study-planner/domain"
	"study-planner/storage"
)

// Register wires up all API routes on the provided Echo instance. deduper may
// be nil, in which case Idempotency-Key headers are ignored.
func Register(e *echo.Echo, store Storage, deduper Deduper, logger *log.Logger) {
	if logger == nil {
		panic("api.Register: logger is required")
	}
	e.GET("/api/:kind", listRecords(store, logger))
	e.GET("/api/:kind/calendar", listGroups(store, logger))
	e.POST("/api/:kind", appendRecord(store, deduper, logger))
	e.DELETE("/api/:kind/:position", removeRecord(store, logger))
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

// startRequest resolves the kind and starts request metrics. When the kind is
// unknown it writes the 404 itself and returns nil metrics.
func startRequest(c echo.Context, logger *log.Logger) (*requestMetrics, domain.Kind, error) {
	metrics, ctx := newRequestMetrics(c.Request().Context(), logger, c.Request().Method, c.Path())
	c.SetRequest(c.Request().WithContext(ctx))

	kind, err := domain.ParseKind(c.Param("kind"))
	if err != nil {
		metrics.SetErrorStage("unknown_kind")
		err = c.String(http.StatusNotFound, "unknown kind")
		metrics.Log(http.StatusNotFound, err)
		return nil, "", err
	}
	metrics.SetKind(kind)
	return metrics, kind, nil
}

func listRecords(store Storage, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		metrics, kind, err := startRequest(c, logger)
		if metrics == nil {
			return err
		}
		var logErr error
		defer func() { metrics.Log(c.Response().Status, logErr) }()

		fetchStart := time.Now()
		records, fetchErr := store.Records(kind)
		metrics.ObserveStore(time.Since(fetchStart))
		if fetchErr != nil {
			return storageFailure(c, metrics, logger, kind, fetchErr, &logErr)
		}
		metrics.SetRecordsReturned(len(records))
		return encode(c, metrics, http.StatusOK, recordsResponse{Kind: kind, Records: records}, &logErr)
	}
}

func listGroups(store Storage, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		metrics, kind, err := startRequest(c, logger)
		if metrics == nil {
			return err
		}
		var logErr error
		defer func() { metrics.Log(c.Response().Status, logErr) }()

		fetchStart := time.Now()
		groups, fetchErr := store.Groups(kind)
		metrics.ObserveStore(time.Since(fetchStart))
		if fetchErr != nil {
			return storageFailure(c, metrics, logger, kind, fetchErr, &logErr)
		}
		n := 0
		for _, g := range groups {
			n += len(g.Records)
		}
		metrics.SetRecordsReturned(n)
		return encode(c, metrics, http.StatusOK, groupsResponse{Kind: kind, Groups: groups}, &logErr)
	}
}

func appendRecord(store Storage, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		metrics, kind, err := startRequest(c, logger)
		if metrics == nil {
			return err
		}
		var logErr error
		defer func() { metrics.Log(c.Response().Status, logErr) }()
		ctx := c.Request().Context()

		lr := io.LimitReader(c.Request().Body, appendMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()

		var req appendRequest
		if dec.Decode(&req) != nil {
			metrics.SetErrorStage("decode")
			return c.String(http.StatusBadRequest, "invalid body")
		}
		rec, msg := req.record()
		if msg != "" {
			metrics.SetErrorStage("validate")
			return c.String(http.StatusBadRequest, msg)
		}

		scope := string(kind)
		key := strings.TrimSpace(c.Request().Header.Get(headerIdempotencyKey))
		var added bool
		if key != "" && deduper != nil {
			fresh, dedupeErr := deduper.Add(ctx, scope, key)
			switch {
			case dedupeErr != nil:
				logger.WithError(dedupeErr).WithField("kind", kind).Warn("idempotency check failed; appending without it")
			case !fresh:
				metrics.SetReplay(true)
				records, fetchErr := store.Records(kind)
				if fetchErr != nil {
					return storageFailure(c, metrics, logger, kind, fetchErr, &logErr)
				}
				metrics.SetRecordsReturned(len(records))
				return encode(c, metrics, http.StatusOK, recordsResponse{Kind: kind, Records: records}, &logErr)
			default:
				added = true
			}
		}

		storeStart := time.Now()
		records, appendErr := store.Append(ctx, kind, rec)
		metrics.ObserveStore(time.Since(storeStart))
		if appendErr != nil {
			if added {
				if rerr := deduper.Remove(context.WithoutCancel(ctx), scope, key); rerr != nil {
					logger.WithError(rerr).WithFields(log.Fields{"kind": kind, "key": key}).Error("idempotency rollback failed")
				}
			}
			return storageFailure(c, metrics, logger, kind, appendErr, &logErr)
		}
		logger.WithFields(log.Fields{"kind": kind, "title": rec.Title, "date": rec.Date.String()}).Debug("record appended")
		metrics.SetRecordsReturned(len(records))
		return encode(c, metrics, http.StatusCreated, recordsResponse{Kind: kind, Records: records}, &logErr)
	}
}

func removeRecord(store Storage, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		metrics, kind, err := startRequest(c, logger)
		if metrics == nil {
			return err
		}
		var logErr error
		defer func() { metrics.Log(c.Response().Status, logErr) }()

		position, convErr := strconv.Atoi(c.Param("position"))
		if convErr != nil {
			metrics.SetErrorStage("invalid_position")
			return c.String(http.StatusBadRequest, "invalid position")
		}

		storeStart := time.Now()
		removed, records, removeErr := store.RemoveAt(c.Request().Context(), kind, position)
		metrics.ObserveStore(time.Since(storeStart))
		if removeErr != nil {
			if errors.Is(removeErr, storage.ErrIndexOutOfRange) {
				metrics.SetErrorStage("out_of_range")
				return c.String(http.StatusNotFound, "no record at position "+strconv.Itoa(position))
			}
			return storageFailure(c, metrics, logger, kind, removeErr, &logErr)
		}
		logger.WithFields(log.Fields{"kind": kind, "position": position, "title": removed.Title}).Debug("record removed")
		metrics.SetRecordsReturned(len(records))
		return encode(c, metrics, http.StatusOK, recordsResponse{Kind: kind, Records: records}, &logErr)
	}
}

// record validates the request and converts it. A non-empty message means
// the request is invalid.
func (r appendRequest) record() (domain.Record, string) {
	title := strings.TrimSpace(r.Title)
	if title == "" {
		return domain.Record{}, "title is required"
	}
	if strings.TrimSpace(r.Date) == "" {
		return domain.Record{}, "date is required"
	}
	date, err := domain.ParseDateStrict(r.Date)
	if err != nil {
		return domain.Record{}, "invalid date, want YYYY-MM-DD"
	}
	return domain.Record{Title: title, Date: date, Description: r.Description}, ""
}

func storageFailure(c echo.Context, metrics *requestMetrics, logger *log.Logger, kind domain.Kind, err error, logErr *error) error {
	if errors.Is(err, domain.ErrUnknownKind) {
		metrics.SetErrorStage("unknown_kind")
		return c.String(http.StatusNotFound, "unknown kind")
	}
	metrics.SetErrorStage("storage")
	*logErr = err
	logger.WithError(err).WithField("kind", kind).Error("storage failure")
	return c.String(http.StatusInternalServerError, "storage failure")
}

func encode(c echo.Context, metrics *requestMetrics, status int, body any, logErr *error) error {
	encodeStart := time.Now()
	err := c.JSON(status, body)
	metrics.ObserveEncode(time.Since(encodeStart))
	if err != nil {
		metrics.SetErrorStage("encode_response")
		*logErr = err
	}
	return err
}
