// Package router validates quote API payloads and normalizes them into
// calculation requests.
package router

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/transferhub/farequote/internal/geo"
	"github.com/transferhub/farequote/internal/pricing/calculator"
)

const maxBodyBytes = 64 << 10

// QuoteRequest is the POST /quote payload. Origin and destination each
// accept a point or a region id; the region id wins when both are set.
type QuoteRequest struct {
	Origin              *geo.Point `json:"origin,omitempty"`
	OriginRegionID      string     `json:"origin_region_id,omitempty"`
	Destination         *geo.Point `json:"destination,omitempty"`
	DestinationRegionID string     `json:"destination_region_id,omitempty"`
	VehicleID           string     `json:"vehicle_id"`
	DistanceKm          *float64   `json:"distance_km,omitempty"`
	DurationMinutes     *float64   `json:"duration_minutes,omitempty"`
	BookingTime         *time.Time `json:"booking_time,omitempty"`
	PickupTime          *time.Time `json:"pickup_time,omitempty"`
	Extras              []string   `json:"extras,omitempty"`
}

// Estimator fills in distance and duration when the client omits them.
type Estimator struct {
	AvgSpeedKmh float64
}

// ParseQuoteRequest decodes and validates the request body. now anchors
// defaulted booking times so tests can pin the clock.
func ParseQuoteRequest(r *http.Request, est Estimator, now time.Time) (calculator.Request, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return calculator.Request{}, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return calculator.Request{}, errors.New("request body too large")
	}

	var qr QuoteRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&qr); err != nil {
		return calculator.Request{}, fmt.Errorf("decode request: %w", err)
	}

	return Normalize(qr, est, now)
}

// Normalize validates a decoded payload and produces the calculation
// request.
func Normalize(qr QuoteRequest, est Estimator, now time.Time) (calculator.Request, error) {
	if strings.TrimSpace(qr.VehicleID) == "" {
		return calculator.Request{}, errors.New("vehicle_id is required")
	}
	if qr.OriginRegionID == "" && qr.Origin == nil {
		return calculator.Request{}, errors.New("origin or origin_region_id is required")
	}
	if qr.Origin != nil && !qr.Origin.Valid() {
		return calculator.Request{}, errors.New("origin: longitude must be in [-180,180] and latitude in [-90,90]")
	}
	if qr.Destination != nil && !qr.Destination.Valid() {
		return calculator.Request{}, errors.New("destination: longitude must be in [-180,180] and latitude in [-90,90]")
	}
	if qr.DistanceKm != nil && *qr.DistanceKm < 0 {
		return calculator.Request{}, errors.New("distance_km must not be negative")
	}
	if qr.DurationMinutes != nil && *qr.DurationMinutes < 0 {
		return calculator.Request{}, errors.New("duration_minutes must not be negative")
	}

	booking := now
	if qr.BookingTime != nil {
		booking = *qr.BookingTime
	}

	req := calculator.Request{
		OriginPoint:         qr.Origin,
		OriginRegionID:      qr.OriginRegionID,
		DestinationPoint:    qr.Destination,
		DestinationRegionID: qr.DestinationRegionID,
		VehicleID:           qr.VehicleID,
		BookingTime:         booking,
		Extras:              qr.Extras,
	}

	if qr.PickupTime != nil {
		lead := qr.PickupTime.Sub(booking).Minutes()
		if lead < 0 {
			return calculator.Request{}, errors.New("pickup_time must not be before booking_time")
		}
		req.MinutesUntilPickup = &lead
	}

	req.DistanceKm, req.DurationMinutes = est.fill(qr)
	return req, nil
}

// fill resolves distance and duration, estimating the straight-line
// distance and an average-speed duration when the client omits them.
func (e Estimator) fill(qr QuoteRequest) (distanceKm, durationMinutes float64) {
	switch {
	case qr.DistanceKm != nil:
		distanceKm = *qr.DistanceKm
	case qr.Origin != nil && qr.Destination != nil:
		distanceKm = geo.HaversineMeters(*qr.Origin, *qr.Destination) / 1000
	}

	switch {
	case qr.DurationMinutes != nil:
		durationMinutes = *qr.DurationMinutes
	case distanceKm > 0 && e.AvgSpeedKmh > 0:
		durationMinutes = distanceKm / e.AvgSpeedKmh * 60
	}
	return distanceKm, durationMinutes
}
