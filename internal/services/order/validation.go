package order

import (
	"fmt"
	"strings"

	"restaurant-pos/internal/apperr"
	"restaurant-pos/internal/models"
)

const (
	maxItems              = 100
	maxQuantity           = 999
	maxNameLength         = 100
	maxInstructionsLength = 255
	maxNotesLength        = 500
	maxSplitGroups        = 50
)

func validateCreateOrder(req *CreateOrderRequest, withCatalog bool) (models.OrderType, error) {
	if strings.TrimSpace(req.OutletID) == "" {
		return "", apperr.FieldValidation("outlet_id", "outlet id is required")
	}

	orderType, err := validateOrderType(req.OrderType)
	if err != nil {
		return "", err
	}

	if req.TableID != nil && strings.TrimSpace(*req.TableID) == "" {
		return "", apperr.FieldValidation("table_id", "table id must not be blank")
	}

	if req.Notes != nil && len(*req.Notes) > maxNotesLength {
		return "", apperr.FieldValidation("notes", "notes must be at most %d characters", maxNotesLength)
	}

	if err := validateItems(req.Items, withCatalog); err != nil {
		return "", err
	}
	return orderType, nil
}

func validateOrderType(orderType string) (models.OrderType, error) {
	if strings.TrimSpace(orderType) == "" {
		return "", apperr.FieldValidation("order_type", "order type is required")
	}
	t, err := models.ParseOrderType(orderType)
	if err != nil {
		return "", apperr.FieldValidation("order_type", "%v", err)
	}
	return t, nil
}

func validateItems(items []ItemRequest, withCatalog bool) error {
	if len(items) == 0 {
		return apperr.FieldValidation("items", "items cannot be empty")
	}

	if len(items) > maxItems {
		return apperr.FieldValidation("items", "a maximum of %d items is allowed", maxItems)
	}

	for i, item := range items {
		if err := validateItem(item, i, withCatalog); err != nil {
			return err
		}
	}
	return nil
}

func validateItem(item ItemRequest, index int, withCatalog bool) error {
	field := func(name string) string { return fmt.Sprintf("items[%d].%s", index, name) }

	if item.Quantity < 1 {
		return apperr.FieldValidation(field("quantity"), "item quantity must be at least 1")
	}

	if item.Quantity > maxQuantity {
		return apperr.FieldValidation(field("quantity"), "item quantity must be at most %d", maxQuantity)
	}

	if item.SpecialInstructions != nil && len(*item.SpecialInstructions) > maxInstructionsLength {
		return apperr.FieldValidation(field("special_instructions"),
			"special instructions must be at most %d characters", maxInstructionsLength)
	}

	if withCatalog {
		if strings.TrimSpace(item.MenuItemID) == "" {
			return apperr.FieldValidation(field("menu_item_id"), "menu item id is required")
		}
		return nil
	}

	if strings.TrimSpace(item.Name) == "" {
		return apperr.FieldValidation(field("name"), "item name is required")
	}

	if len(item.Name) > maxNameLength {
		return apperr.FieldValidation(field("name"), "item name must be at most %d characters", maxNameLength)
	}

	if item.UnitPrice == nil {
		return apperr.FieldValidation(field("unit_price"), "unit price is required")
	}

	if item.UnitPrice.IsNegative() {
		return apperr.FieldValidation(field("unit_price"), "unit price must not be negative")
	}
	return nil
}

func validateSplitRequest(req *SplitRequest) (models.SplitType, error) {
	switch t := models.SplitType(strings.ToUpper(strings.TrimSpace(req.SplitType))); t {
	case models.SplitEqual:
		if req.NumberOfSplits > maxSplitGroups {
			return "", apperr.FieldValidation("number_of_splits", "must be at most %d", maxSplitGroups)
		}
		return t, nil
	case models.SplitByItems:
		if len(req.Groups) > maxSplitGroups {
			return "", apperr.FieldValidation("groups", "a maximum of %d groups is allowed", maxSplitGroups)
		}
		return t, nil
	case models.SplitByAmount:
		if len(req.Amounts) > maxSplitGroups {
			return "", apperr.FieldValidation("amounts", "a maximum of %d amounts is allowed", maxSplitGroups)
		}
		return t, nil
	}
	return "", apperr.FieldValidation("split_type", "split type must be one of: EQUAL, BY_ITEMS, BY_AMOUNT")
}
