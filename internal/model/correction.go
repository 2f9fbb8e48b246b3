package model

const (
	CorrectionInsertSale   = "insert_sale"
	CorrectionUpdateAmount = "update_amount"
	CorrectionMergeSale    = "merge_sale"
)

// Correction 对账自动修正的一次写入。与其审计日志在同一事务内提交。
type Correction struct {
	Kind string

	// insert_sale
	Sale *SaleRecord

	// update_amount / merge_sale
	SaleID         int64
	ExpectedAmount int64 // 读取时的金额，用于乐观校验
	NewAmount      int64
	NewCurrency    string
	CanonicalID    int64

	Audit *AuditLogEntry
}
