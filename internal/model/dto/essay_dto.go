package dto

type GenerateEssayRequest struct {
	Topic         string `json:"topic" binding:"required,min=10,max=500"`
	Field         string `json:"field" binding:"required"`
	CitationStyle string `json:"citation_style" binding:"omitempty,oneof=APA MLA Chicago Harvard"`
	WordCount     int    `json:"word_count" binding:"required,min=500,max=10000"`
}

type EssayInfo struct {
	ID            int64  `json:"id"`
	Topic         string `json:"topic"`
	Field         string `json:"field"`
	CitationStyle string `json:"citation_style"`
	WordCount     int    `json:"word_count"`
	SourceCount   string `json:"source_count"`
	DocumentURL   string `json:"document_url,omitempty"`
	CreatedAt     string `json:"created_at"`
}

type EssayDetail struct {
	EssayInfo
	Content string `json:"content"`
}
