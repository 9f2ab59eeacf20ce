package logic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/shopspring/decimal"
	"github.com/pccr10001/smsnotify/internal/worker"
	"github.com/pccr10001/smsnotify/pkg/logger"
)

// SourceNotification tags jobs created for reservations.
const SourceNotification = "notification"

// Enqueuer is the part of worker.Queue the notifier needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, destination, text string) (worker.Job, error)
}

// Reservation is the booking a notification is sent for. Date is
// 2006-01-02, times are 15:04 and an end of 23:59 means end of day.
type Reservation struct {
	CustomerName  string      `json:"customer_name"`
	CustomerPhone string      `json:"customer_phone"`
	Court         string      `json:"court"`
	Date          string      `json:"date" binding:"required"`
	StartTime     string      `json:"start_time" binding:"required"`
	EndTime       string      `json:"end_time" binding:"required"`
	Price         json.Number `json:"price"`
}

// reservationView is what the templates see.
type reservationView struct {
	Customer string
	Court    string
	Date     string
	Start    string
	End      string
	Price    string
}

type NotificationService struct {
	queue      Enqueuer
	clubNumber string
	customer   *template.Template
	club       *template.Template
}

func NewNotificationService(queue Enqueuer, clubNumber, customerTmpl, clubTmpl string) (*NotificationService, error) {
	customer, err := template.New("customer").Option("missingkey=error").Parse(customerTmpl)
	if err != nil {
		return nil, fmt.Errorf("customer template: %w", err)
	}
	club, err := template.New("club").Option("missingkey=error").Parse(clubTmpl)
	if err != nil {
		return nil, fmt.Errorf("club template: %w", err)
	}
	return &NotificationService{
		queue:      queue,
		clubNumber: strings.TrimSpace(clubNumber),
		customer:   customer,
		club:       club,
	}, nil
}

// NotifyReservation queues the customer confirmation and the club copy. A
// missing customer phone or club number skips that message. It never waits
// for the modem; the returned jobs are the ones accepted.
func (s *NotificationService) NotifyReservation(ctx context.Context, r Reservation) ([]worker.Job, error) {
	view, err := newReservationView(r)
	if err != nil {
		return nil, err
	}
	ctx = worker.WithSource(ctx, SourceNotification)

	var jobs []worker.Job
	var errs []error

	if phone := strings.TrimSpace(r.CustomerPhone); phone != "" {
		job, err := s.enqueue(ctx, s.customer, phone, view)
		if err != nil {
			errs = append(errs, fmt.Errorf("customer: %w", err))
		} else {
			jobs = append(jobs, job)
		}
	} else {
		logger.Log.Warn("Customer phone is missing; customer SMS not queued")
	}

	if s.clubNumber != "" {
		job, err := s.enqueue(ctx, s.club, s.clubNumber, view)
		if err != nil {
			errs = append(errs, fmt.Errorf("club: %w", err))
		} else {
			jobs = append(jobs, job)
		}
	} else {
		logger.Log.Warn("Club number is not configured; club SMS not queued")
	}

	return jobs, errors.Join(errs...)
}

func (s *NotificationService) enqueue(ctx context.Context, tmpl *template.Template, to string, view reservationView) (worker.Job, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, view); err != nil {
		return worker.Job{}, fmt.Errorf("render %s template: %w", tmpl.Name(), err)
	}
	return s.queue.Enqueue(ctx, to, buf.String())
}

// ErrInvalidReservation is returned for dates, times or prices that cannot
// be parsed.
var ErrInvalidReservation = errors.New("invalid reservation")

func newReservationView(r Reservation) (reservationView, error) {
	date, err := time.Parse(time.DateOnly, strings.TrimSpace(r.Date))
	if err != nil {
		return reservationView{}, fmt.Errorf("%w: date %q", ErrInvalidReservation, r.Date)
	}
	start, err := formatClock(r.StartTime)
	if err != nil {
		return reservationView{}, err
	}
	end, err := formatClock(r.EndTime)
	if err != nil {
		return reservationView{}, err
	}
	price, err := formatPrice(r.Price)
	if err != nil {
		return reservationView{}, err
	}

	v := reservationView{
		Customer: strings.TrimSpace(r.CustomerName),
		Court:    strings.TrimSpace(r.Court),
		Date:     date.Format("02.01.2006"),
		Start:    start,
		End:      end,
		Price:    price,
	}
	if v.Customer == "" {
		v.Customer = "Client"
	}
	if v.Court == "" {
		v.Court = "teren"
	}
	return v, nil
}

// formatClock renders HH:MM, showing 23:59 as 24:00. "24:00" is accepted
// as input too.
func formatClock(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "24:00" {
		return s, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return "", fmt.Errorf("%w: time %q", ErrInvalidReservation, s)
	}
	if t.Hour() == 23 && t.Minute() == 59 {
		return "24:00", nil
	}
	return t.Format("15:04"), nil
}

// formatPrice drops trailing zeros: 150.00 -> 150, 72.50 -> 72.5.
func formatPrice(n json.Number) (string, error) {
	if n == "" {
		return "0", nil
	}
	d, err := decimal.NewFromString(string(n))
	if err != nil || d.IsNegative() {
		return "", fmt.Errorf("%w: price %q", ErrInvalidReservation, n)
	}
	return d.String(), nil
}
