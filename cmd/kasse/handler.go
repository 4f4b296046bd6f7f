package main

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/kjellgren/kasse/internal/domain"
	"github.com/kjellgren/kasse/internal/service"
)

type orderLineView struct {
	ID          uuid.UUID `json:"id"`
	Description string    `json:"description"`
	Price       string    `json:"price"`
	Quantity    int64     `json:"quantity"`
	IsRefund    bool      `json:"is_refund"`
}

type orderView struct {
	ID                uuid.UUID       `json:"id"`
	Status            string          `json:"status"`
	CustomerName      string          `json:"customer_name"`
	CustomerEmail     string          `json:"customer_email"`
	PaymentProvider   string          `json:"payment_provider"`
	ExternalInvoiceID string          `json:"external_invoice_id,omitempty"`
	RefundOfOrderID   *uuid.UUID      `json:"refund_of_order_id,omitempty"`
	Total             string          `json:"total"`
	Lines             []orderLineView `json:"lines"`
}

// handleGetOrder is a read-only inspection endpoint for operators.
func handleGetOrder(w http.ResponseWriter, r *http.Request, orders service.OrderService) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}

	order, err := orders.GetOrder(r.Context(), id)
	if err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			http.Error(w, "order not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	view := orderView{
		ID:                order.ID,
		Status:            string(order.Status),
		CustomerName:      order.CustomerName,
		CustomerEmail:     order.CustomerEmail,
		PaymentProvider:   string(order.PaymentProvider),
		ExternalInvoiceID: order.ExternalInvoiceID,
		RefundOfOrderID:   order.RefundOfOrderID,
		Total:             order.TotalAmount().String(),
	}
	for _, line := range order.Lines {
		view.Lines = append(view.Lines, orderLineView{
			ID:          line.ID,
			Description: line.Description,
			Price:       line.Price.String(),
			Quantity:    line.Quantity,
			IsRefund:    line.IsRefund,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}
