package domain

import (
	"time"

	"github.com/google/uuid"
)

// OrderLine — позиция заказа: внешний идентификатор товара и количество.
// Пара (заказ, товар) уникальна, количество строго положительное; оба
// инварианта закреплены на уровне хранилища.
type OrderLine struct {
	// ItemID — внешний каталожный идентификатор товара.
	ItemID string
	// Amount — количество единиц товара, > 0.
	Amount int
}

// Order агрегирует заказ пользователя и его позиции.
type Order struct {
	// ID — внутренний монотонный ключ, наружу не отдаётся.
	ID int64
	// UUID — публичная идентичность заказа (через slug-кодек).
	UUID uuid.UUID
	// UserUUID — владелец заказа; неизменяем после создания.
	UserUUID uuid.UUID
	Lines    []OrderLine

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProductTypes возвращает число различных позиций заказа.
// Вычисляется по живой связи и нигде не кэшируется.
func (o *Order) ProductTypes() int {
	return len(o.Lines)
}

// ItemsAmount возвращает суммарное количество товаров по всем позициям.
func (o *Order) ItemsAmount() int {
	var total int
	for _, line := range o.Lines {
		total += line.Amount
	}
	return total
}

// Product — запись каталога, материализуемая лениво: создаётся первой
// позицией заказа, ссылающейся на неизвестный ItemID, и этим ядром
// никогда не удаляется.
type Product struct {
	ID   int64
	UUID uuid.UUID
	// ItemID — внешний каталожный идентификатор; уникален и неизменяем.
	ItemID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ItemInput — одна строка входного списка товаров при создании заказа.
type ItemInput struct {
	ItemID string
	Amount int
}

// Datespan — фильтр по дате последнего изменения заказа, включительный
// с точностью до дня: заказ, обновлённый в день End, попадает в выборку.
type Datespan struct {
	Start time.Time
	End   time.Time
}

// Bounds возвращает полуинтервал [start, end+1d) для фильтра хранилища.
func (d Datespan) Bounds() (time.Time, time.Time) {
	return d.Start, d.End.AddDate(0, 0, 1)
}

// OrderPage — страница заказов пользователя вместе с итогами пагинации.
type OrderPage struct {
	Orders []Order
	// Total — число подходящих заказов без учёта окна пагинации.
	Total int
	// Pages = ceil(Total / pageSize).
	Pages int
}
