package transport

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CreateCategoryRequest struct {
	Name     string `json:"name"`
	ParentID *uint  `json:"parent_id"`
}

type CreateProductRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Count       uint    `json:"count"`
	CategoryID  *uint   `json:"category_id"`
}

type PatchProductRequest struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price"`
	Count       *uint    `json:"count"`
	CategoryID  *uint    `json:"category_id"`
}

type Meta struct {
	Page       int   `json:"page"`
	Size       int   `json:"size"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
	HasPrev    bool  `json:"has_prev"`
	HasNext    bool  `json:"has_next"`
}

type Page[T any] struct {
	Data []T  `json:"data"`
	Meta Meta `json:"meta"`
}

func NewPage[T any](items []T, page, offset, limit int, total int64) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Data: items,
		Meta: Meta{
			Page:       page,
			Size:       limit,
			Total:      total,
			TotalPages: (total + int64(limit) - 1) / int64(limit),
			HasPrev:    page > 1,
			HasNext:    int64(offset+limit) < total,
		},
	}
}

type CreateTradeRequest struct {
	ProductID uint    `json:"product_id"`
	Count     uint    `json:"count"`
	Price     float64 `json:"price"`
	Tax       *int    `json:"tax"`
}
