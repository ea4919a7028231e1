package models

import "github.com/united-manufacturing-hub/shift-ledger/pkg/datamodel"

type OrderRequest struct {
	OrderNumber string `uri:"order" binding:"required"`
}

type SignatureIDRequest struct {
	ID string `uri:"id" binding:"required"`
}

type SignOrderRequest struct {
	SupervisorName string `json:"supervisor_name"`
	Comment        string `json:"comment"`
	SupervisorID   int    `json:"supervisor_id" binding:"required"`
}

type GetSignaturesResponse struct {
	OrderNumber string                `json:"order_number"`
	Signatures  []datamodel.Signature `json:"signatures"`
	Signed      bool                  `json:"signed"`
}

type ListAllSignaturesResponse struct {
	Signatures []datamodel.Signature `json:"signatures"`
}
