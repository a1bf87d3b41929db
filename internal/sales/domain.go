package sales

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/vela-pos/vela-pos/internal/ledger"
	"github.com/vela-pos/vela-pos/internal/shared"
)

// Status enumerates the sale lifecycle.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusRefunded  Status = "REFUNDED"
)

// Sale is the settled point-of-sale document. It is the system of record:
// once committed it is never rolled back to compensate a downstream failure.
type Sale struct {
	ID             int64
	CompanyID      int64
	Number         string
	Seq            int64
	Status         Status
	CustomerID     *int64
	Date           time.Time
	Subtotal       float64
	Discount       float64
	Tax            float64
	Total          float64
	PaidAmount     float64
	CreditAmount   float64
	CreditDueDate  time.Time
	JournalEntryID *int64
	CreditID       *int64
	SourceID       uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Items          []Item
	Payments       []Payment

	// Warnings carries post-commit step failures back to the caller. The
	// sale itself succeeded; these effects await reconciliation.
	Warnings []string
}

// Item is one sold line with its price, tax and cost snapshot.
type Item struct {
	ID        int64
	SaleID    int64
	ProductID int64
	VariantID int64
	Quantity  float64
	UnitPrice float64
	Discount  float64
	TaxAmount float64
	UnitCost  float64
	LineTotal float64
}

// Payment is one tender against the sale.
type Payment struct {
	ID     int64
	SaleID int64
	Method ledger.Instrument
	Amount float64
}

// ItemRequest describes a requested sale line. Tax rate and unit cost are
// filled from the product lookup collaborator, not trusted from the client.
type ItemRequest struct {
	ProductID int64   `json:"product_id" validate:"required"`
	VariantID int64   `json:"variant_id"`
	Quantity  float64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice float64 `json:"unit_price" validate:"required,gt=0"`
	Discount  float64 `json:"discount" validate:"gte=0"`
}

// PaymentRequest describes one tender.
type PaymentRequest struct {
	Method ledger.Instrument `json:"method" validate:"required,oneof=CASH BANK"`
	Amount float64           `json:"amount" validate:"required,gt=0"`
}

// SettleRequest is the validated input handed to the orchestrator.
type SettleRequest struct {
	CompanyID  int64            `json:"company_id" validate:"required"`
	CustomerID int64            `json:"customer_id"`
	Date       time.Time        `json:"date"`
	DueDate    time.Time        `json:"due_date"`
	Items      []ItemRequest    `json:"items" validate:"required,min=1,dive"`
	Payments   []PaymentRequest `json:"payments" validate:"dive"`
	ActorID    int64            `json:"-"`
}

// ProductInfo is what the product/price lookup collaborator supplies per item.
type ProductInfo struct {
	TaxRate  float64
	UnitCost float64
}

var (
	// ErrSaleNotFound indicates a missing sale.
	ErrSaleNotFound = errors.New("sales: sale not found")
	// ErrInvalidStatus indicates the sale is not in a state permitting the action.
	ErrInvalidStatus = errors.New("sales: invalid status transition")
	// ErrCustomerRequired indicates an unpaid remainder without a customer.
	ErrCustomerRequired = errors.New("sales: credit sale requires a customer")
	// ErrOverpaid indicates tenders exceeding the sale total.
	ErrOverpaid = errors.New("sales: payments exceed sale total")
)

// plan is the priced settlement derived from a request before any write.
type plan struct {
	items    []Item
	payments []Payment
	subtotal float64
	discount float64
	tax      float64
	total    float64
	paid     float64
	credit   float64
}

func (p plan) cashPaid() float64 { return p.paidBy(ledger.InstrumentCash) }
func (p plan) bankPaid() float64 { return p.paidBy(ledger.InstrumentBank) }

func (p plan) paidBy(method ledger.Instrument) float64 {
	var sum float64
	for _, pay := range p.payments {
		if pay.Method == method {
			sum += pay.Amount
		}
	}
	return sum
}

// buildPlan prices the request. Totals honour total = subtotal − discount + tax
// by construction; the explicit check guards against float drift.
func buildPlan(req SettleRequest, infos []ProductInfo) (plan, error) {
	if len(infos) != len(req.Items) {
		return plan{}, errors.New("sales: product info count mismatch")
	}
	var p plan
	for idx, item := range req.Items {
		info := infos[idx]
		gross := item.Quantity * item.UnitPrice
		if item.Discount > gross {
			return plan{}, fmt.Errorf("sales: line %d discount exceeds line amount", idx)
		}
		taxable := gross - item.Discount
		tax := round2(taxable * info.TaxRate)
		p.items = append(p.items, Item{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Discount:  item.Discount,
			TaxAmount: tax,
			UnitCost:  info.UnitCost,
			LineTotal: taxable + tax,
		})
		p.subtotal += gross
		p.discount += item.Discount
		p.tax += tax
	}
	p.total = round2(p.subtotal - p.discount + p.tax)
	for _, pay := range req.Payments {
		p.payments = append(p.payments, Payment{Method: pay.Method, Amount: pay.Amount})
		p.paid += pay.Amount
	}
	if p.paid > p.total+shared.AmountEpsilon {
		return plan{}, fmt.Errorf("%w: paid %s, total %s", ErrOverpaid, shared.FormatAmount(p.paid), shared.FormatAmount(p.total))
	}
	p.credit = round2(p.total - p.paid)
	if p.credit < shared.AmountEpsilon {
		p.credit = 0
	}
	if math.Abs(p.total-(p.subtotal-p.discount+p.tax)) >= shared.AmountEpsilon {
		return plan{}, errors.New("sales: totals do not reconcile")
	}
	return p, nil
}

// costTotal sums the cost snapshot across items. Zero means cost data was not
// available and no cost-of-sale lines are posted.
func costTotal(items []Item) float64 {
	var sum float64
	for _, item := range items {
		sum += item.UnitCost * item.Quantity
	}
	return round2(sum)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
