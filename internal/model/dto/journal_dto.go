package dto

type JournalSearchRequest struct {
	Query    string `json:"query" binding:"required,min=2,max=200"`
	Page     int    `json:"page" binding:"omitempty,min=1"`
	PageSize int    `json:"page_size" binding:"omitempty,min=1,max=100"`
}

type Article struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Authors  []string `json:"authors"`
	Journal  string   `json:"journal"`
	Year     int      `json:"year"`
	Abstract string   `json:"abstract"`
	DOI      string   `json:"doi"`
	Citation string   `json:"citation"`
}
