package mongo

import (
	"context"
	"time"

	"github.com/ticketbay/settlement/internal/observability"
	"github.com/ticketbay/settlement/internal/settlement"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// AuditLog persists every payout attempt before the gateway call. The resale
// loop does not compensate earlier payouts when a later ticket fails, so
// these records are the source of truth for manual reconciliation.
type AuditLog struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLog(db *mongo.Database, logger observability.Logger) *AuditLog {
	return &AuditLog{
		coll:   db.Collection("payout_audit"),
		logger: logger,
	}
}

type payoutDoc struct {
	Reference     string    `bson:"_id"`
	SaleReference string    `bson:"sale_reference"`
	TicketID      string    `bson:"ticket_id"`
	TicketCode    string    `bson:"ticket_code"`
	SellerID      string    `bson:"seller_id"`
	Amount        int64     `bson:"amount"`
	Currency      string    `bson:"currency"`
	BankCode      string    `bson:"bank_code"`
	AccountNumber string    `bson:"account_number"`
	GatewayStatus string    `bson:"gateway_status"`
	InitiatedAt   time.Time `bson:"initiated_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

func (a *AuditLog) RecordPayout(ctx context.Context, rec settlement.PayoutAudit) error {
	doc := payoutDoc{
		Reference:     rec.Reference,
		SaleReference: rec.SaleReference,
		TicketID:      rec.TicketID.String(),
		TicketCode:    rec.TicketCode,
		SellerID:      rec.SellerID.String(),
		Amount:        rec.Amount,
		Currency:      rec.Currency,
		BankCode:      rec.BankCode,
		AccountNumber: rec.AccountNumber,
		GatewayStatus: "initiating",
		InitiatedAt:   rec.InitiatedAt,
		UpdatedAt:     rec.InitiatedAt,
	}
	_, err := a.coll.InsertOne(ctx, doc)
	if err != nil {
		a.logger.Error("failed to insert payout audit record: ", err)
		return err
	}
	return nil
}

func (a *AuditLog) RecordPayoutResult(ctx context.Context, reference, status string) error {
	_, err := a.coll.UpdateOne(
		ctx,
		bson.M{"_id": reference},
		bson.M{"$set": bson.M{"gateway_status": status, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		a.logger.Error("failed to update payout audit record: ", err)
		return err
	}
	return nil
}

// Unreconciled lists payouts still marked "initiating": candidates for the
// manual sweep after a mid-batch settlement failure.
func (a *AuditLog) Unreconciled(ctx context.Context, olderThan time.Time) ([]settlement.PayoutAudit, error) {
	cur, err := a.coll.Find(ctx, bson.M{
		"gateway_status": "initiating",
		"initiated_at":   bson.M{"$lt": olderThan},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []settlement.PayoutAudit
	for cur.Next(ctx) {
		var doc payoutDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, settlement.PayoutAudit{
			Reference:     doc.Reference,
			SaleReference: doc.SaleReference,
			TicketCode:    doc.TicketCode,
			Amount:        doc.Amount,
			Currency:      doc.Currency,
			BankCode:      doc.BankCode,
			AccountNumber: doc.AccountNumber,
			InitiatedAt:   doc.InitiatedAt,
		})
	}
	return out, cur.Err()
}
