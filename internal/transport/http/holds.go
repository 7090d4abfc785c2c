package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/quartostays/booking-engine/internal/app"
	"github.com/quartostays/booking-engine/internal/domain"
)

const userIDHeader = "X-User-ID"
const dateLayout = "2006-01-02"

// HoldAPI is the slice of the hold service the transport needs.
type HoldAPI interface {
	CreateHold(ctx context.Context, in app.CreateHoldInput) (domain.Hold, error)
	Release(ctx context.Context, holdID, requesterID string) (domain.Hold, error)
	Get(ctx context.Context, holdID, requesterID string) (domain.Hold, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Hold, error)
}

// HandleHolds serves POST /holds and GET /holds?mine=true.
func HandleHolds(svc HoldAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			createHold(svc, w, r)
		case http.MethodGet:
			listHolds(svc, w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		}
	}
}

// HandleHoldByID serves GET and DELETE on /holds/{id}.
func HandleHoldByID(svc HoldAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		holdID, ok := parseHoldPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}
		userID := requireUser(w, r)
		if userID == "" {
			return
		}

		switch r.Method {
		case http.MethodGet:
			hold, err := svc.Get(r.Context(), holdID, userID)
			if err != nil {
				writeHoldError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, toHoldResponse(hold))
		case http.MethodDelete:
			// Releasing an already-terminal hold reports success; the
			// decrement happened exactly once, whoever triggered it.
			if _, err := svc.Release(r.Context(), holdID, userID); err != nil {
				writeHoldError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]bool{"released": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		}
	}
}

func createHold(svc HoldAPI, w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	var req createHoldRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}

	in, err := req.toInput(userID)
	if err != nil {
		writeHoldError(w, err)
		return
	}

	hold, err := svc.CreateHold(r.Context(), in)
	if err != nil {
		writeHoldError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toHoldResponse(hold))
}

func listHolds(svc HoldAPI, w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("mine") != "true" {
		writeError(w, http.StatusBadRequest, codeMissingRequiredField, "only mine=true listing is supported")
		return
	}
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	holds, err := svc.ListByUser(r.Context(), userID)
	if err != nil {
		writeHoldError(w, err)
		return
	}

	out := make([]holdResponse, 0, len(holds))
	for _, h := range holds {
		out = append(out, toHoldResponse(h))
	}
	writeJSON(w, http.StatusOK, map[string]any{"holds": out})
}

func requireUser(w http.ResponseWriter, r *http.Request) string {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "missing "+userIDHeader+" header")
	}
	return userID
}

func parseHoldPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] != "holds" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func writeHoldError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidDateRange):
		writeError(w, http.StatusBadRequest, codeInvalidDateRange, err.Error())
	case errors.Is(err, domain.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, codeInvalidQuantity, err.Error())
	case errors.Is(err, domain.ErrInvalidGuestCount):
		writeError(w, http.StatusBadRequest, codeInvalidGuestCount, err.Error())
	case errors.Is(err, domain.ErrInvalidID):
		writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
	case errors.Is(err, domain.ErrCurrencyMismatch):
		writeError(w, http.StatusBadRequest, codeCurrencyMismatch, err.Error())
	case errors.Is(err, domain.ErrInsufficientInventory):
		writeError(w, http.StatusBadRequest, codeInsufficientInventory, err.Error())
	case errors.Is(err, domain.ErrRoomNotFound):
		writeError(w, http.StatusNotFound, codeRoomNotFound, err.Error())
	case errors.Is(err, domain.ErrHoldNotFound):
		writeError(w, http.StatusNotFound, codeHoldNotFound, err.Error())
	case errors.Is(err, domain.ErrHoldNotOwned):
		writeError(w, http.StatusForbidden, codeForbidden, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

type createHoldRequest struct {
	HotelID        string            `json:"hotelId"`
	CheckInDate    string            `json:"checkInDate"`
	CheckOutDate   string            `json:"checkOutDate"`
	NumberOfGuests int               `json:"numberOfGuests"`
	Rooms          []roomRequestLine `json:"rooms"`
	Currency       string            `json:"currency"`
}

type roomRequestLine struct {
	RoomID   string `json:"roomId"`
	Quantity int    `json:"quantity"`
}

func (r createHoldRequest) toInput(userID string) (app.CreateHoldInput, error) {
	if r.HotelID == "" || r.Currency == "" {
		return app.CreateHoldInput{}, domain.ErrInvalidID
	}
	checkIn, err := time.Parse(dateLayout, r.CheckInDate)
	if err != nil {
		return app.CreateHoldInput{}, domain.ErrInvalidDateRange
	}
	checkOut, err := time.Parse(dateLayout, r.CheckOutDate)
	if err != nil {
		return app.CreateHoldInput{}, domain.ErrInvalidDateRange
	}

	rooms := make([]domain.RoomQuantity, 0, len(r.Rooms))
	for _, line := range r.Rooms {
		rooms = append(rooms, domain.RoomQuantity{RoomID: line.RoomID, Quantity: line.Quantity})
	}

	return app.CreateHoldInput{
		UserID:   userID,
		HotelID:  r.HotelID,
		CheckIn:  checkIn,
		CheckOut: checkOut,
		Guests:   r.NumberOfGuests,
		Rooms:    rooms,
		Currency: r.Currency,
	}, nil
}

type holdResponse struct {
	HoldID     string    `json:"holdId"`
	Status     string    `json:"status"`
	TotalPrice int64     `json:"totalPrice"`
	Currency   string    `json:"currency"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

func toHoldResponse(h domain.Hold) holdResponse {
	return holdResponse{
		HoldID:     h.ID,
		Status:     string(h.Status),
		TotalPrice: h.TotalCents,
		Currency:   h.Currency,
		ExpiresAt:  h.ExpiresAt,
	}
}
