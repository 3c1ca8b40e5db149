package models

import (
	"time"
)

// Attachment is a file stored against a work order.
type Attachment struct {
	ID          string    `json:"id" bson:"_id"`
	WorkOrderID string    `json:"work_order_id" bson:"work_order_id"`
	FileName    string    `json:"file_name" bson:"file_name"`
	ObjectKey   string    `json:"object_key" bson:"object_key"`
	ContentType string    `json:"content_type" bson:"content_type"`
	Size        int64     `json:"size" bson:"size"`
	Category    string    `json:"category" bson:"category"` // "photo", "document", "permit", "signature"
	Caption     string    `json:"caption" bson:"caption"`
	UploadedBy  string    `json:"uploaded_by" bson:"uploaded_by"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
}

// AttachmentMetadata describes an upload.
type AttachmentMetadata struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Category    string `json:"category"`
	Caption     string `json:"caption"`
	UploadedBy  string `json:"uploaded_by"`
}
