package models

import (
	"math"
	"time"
)

// Transaction is one product sale event as served by the seed source.
// ID doubles as the store key so repeated ingestion collides on it.
type Transaction struct {
	ID          int64      `json:"id" bson:"_id" gorm:"column:id;primaryKey;autoIncrement:false"`
	Title       string     `json:"title" bson:"title" gorm:"column:title;type:text"`
	Description string     `json:"description" bson:"description" gorm:"column:description;type:text"`
	Price       float64    `json:"price" bson:"price" gorm:"column:price;not null;index"`
	Category    string     `json:"category" bson:"category" gorm:"column:category;type:varchar(100);index"`
	Image       string     `json:"image" bson:"image" gorm:"column:image;type:text"`
	Sold        bool       `json:"sold" bson:"sold" gorm:"column:sold;not null"`
	DateOfSale  *time.Time `json:"dateOfSale,omitempty" bson:"dateOfSale,omitempty" gorm:"column:date_of_sale;type:timestamptz;index"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// TransactionFilter narrows a listing. An empty Search matches everything.
type TransactionFilter struct {
	Search string
	Price  float64
}

func (f TransactionFilter) HasSearch() bool {
	return f.Search != ""
}

type ListQuery struct {
	Filter  TransactionFilter
	Page    int
	PerPage int
}

type TransactionPage struct {
	Page         int           `json:"page"`
	PerPage      int           `json:"perPage"`
	TotalRecords int64         `json:"totalRecords"`
	TotalPages   int64         `json:"totalPages"`
	Transactions []Transaction `json:"transactions"`
}

type Statistics struct {
	TotalSaleAmount   float64 `json:"totalSaleAmount"`
	TotalSoldItems    int64   `json:"totalSoldItems"`
	TotalNotSoldItems int64   `json:"totalNotSoldItems"`
}

type PriceRangeCount struct {
	Range string `json:"range"`
	Count int64  `json:"count"`
}

type CategoryCount struct {
	Category string `json:"_id" bson:"_id" gorm:"column:category"`
	Count    int64  `json:"count" bson:"count" gorm:"column:count"`
}

type CombinedStatistics struct {
	TotalSaleAmount   float64           `json:"totalSaleAmount"`
	TotalSoldItems    int64             `json:"totalSoldItems"`
	TotalNotSoldItems int64             `json:"totalNotSoldItems"`
	BarChartData      []PriceRangeCount `json:"barChartData"`
	PieChartData      []CategoryCount   `json:"pieChartData"`
}

// InsertResult is what a store reports back from a bulk insert.
type InsertResult struct {
	Inserted   int
	Duplicates int
	Failed     int
}

type IngestResult struct {
	Message    string `json:"message"`
	Received   int    `json:"received"`
	Inserted   int    `json:"inserted"`
	Duplicates int    `json:"duplicates"`
	Rejected   int    `json:"rejected"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// PriceRange is a histogram bucket: Min <= price < Max.
type PriceRange struct {
	Label string
	Min   float64
	Max   float64
}

func (r PriceRange) Unbounded() bool {
	return math.IsInf(r.Max, 1)
}

func (r PriceRange) Contains(price float64) bool {
	return price >= r.Min && price < r.Max
}

// PriceRanges is the fixed bar chart layout. Lower bounds after the first
// start at x01, so prices of exactly 100, 200, ... 900 land in no bucket.
var PriceRanges = []PriceRange{
	{Label: "0-100", Min: 0, Max: 100},
	{Label: "101-200", Min: 101, Max: 200},
	{Label: "201-300", Min: 201, Max: 300},
	{Label: "301-400", Min: 301, Max: 400},
	{Label: "401-500", Min: 401, Max: 500},
	{Label: "501-600", Min: 501, Max: 600},
	{Label: "601-700", Min: 601, Max: 700},
	{Label: "701-800", Min: 701, Max: 800},
	{Label: "801-900", Min: 801, Max: 900},
	{Label: "901-above", Min: 901, Max: math.Inf(1)},
}
