package api

import (
	"errors"

	"SignalDesk/internal/domain/models"
	xhttp "SignalDesk/pkg/http"
)

// toAppError maps the domain error taxonomy onto HTTP statuses.
func toAppError(err error) *xhttp.AppError {
	var (
		appErr  *xhttp.AppError
		valErr  *models.ValidationError
		upErr   *models.UpstreamError
		dataErr *models.InsufficientDataError
		perErr  *models.PersistenceError
	)
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, models.ErrUnauthenticated):
		return xhttp.UnauthorizedError("authentication required").WithError(err)
	case errors.Is(err, models.ErrForbidden):
		return xhttp.ForbiddenError("missing crypto-middleware permission").WithError(err)
	case errors.Is(err, models.ErrRefreshRunning):
		return xhttp.ConflictError(models.ErrRefreshRunning.Error())
	case errors.Is(err, models.ErrNotFound):
		return xhttp.NotFoundError(err.Error())
	case errors.Is(err, models.ErrRateLimited):
		return xhttp.TooManyRequestsError("too many requests, try again later")
	case errors.As(err, &valErr):
		e := xhttp.BadRequestError(valErr.Error())
		e.Field = valErr.Field
		return e
	case errors.As(err, &dataErr):
		return xhttp.UnprocessableError(dataErr.Error()).
			WithParam("symbol", dataErr.Symbol).
			WithParam("series", dataErr.Series).
			WithParam("have", dataErr.Have).
			WithParam("need", dataErr.Need)
	case errors.As(err, &upErr):
		e := xhttp.ServiceUnavailableError(upErr.Error()).WithParam("provider", upErr.Provider)
		return e.WithError(err)
	case errors.As(err, &perErr):
		return xhttp.InternalError("signal store unavailable").WithError(err)
	default:
		return xhttp.InternalError("internal error").WithError(err)
	}
}
