package account

import (
	"context"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/newmedica/storefront/internal/domain"
	"github.com/newmedica/storefront/internal/events"
	"github.com/newmedica/storefront/internal/validation"
)

var quotationMessages = map[string]string{
	"productId":   "Product is required",
	"productName": "Product is required",
	"fullName":    "Full name is required",
	"department":  "Department is required",
	"companyName": "Company name is required",
	"email":       "Email is required",
	"telNo":       "Telephone number is required",
	"address":     "Address is required",
}

// QuotationDraft заполняет запрос предложения данными профиля.
// Для медработника в поле компании попадает название больницы.
func QuotationDraft(product domain.Product, user domain.User) domain.QuotationRequest {
	company := user.CompanyName
	if company == "" {
		company = user.HospitalName
	}
	return domain.QuotationRequest{
		ProductID:   product.ID,
		ProductName: product.Name,
		FullName:    strings.TrimSpace(user.FirstName + " " + user.LastName),
		Department:  user.Department,
		CompanyName: company,
		CoRegNo:     user.CoRegNo,
		TINNo:       user.TINNo,
		Email:       user.Email,
		TelNo:       user.HPNo,
		Address:     user.CompanyAddress,
	}
}

// RequestQuotation проверяет запрос и ставит событие quotation.requested в outbox.
// Возвращает идентификатор запроса.
func (s *Service) RequestQuotation(ctx context.Context, req domain.QuotationRequest) (string, error) {
	req = normalizeQuotation(req)
	if err := validation.Struct(req, quotationMessages); err != nil {
		return "", err
	}

	id := uuid.NewString()
	payload := map[string]any{
		"quotation_id": id,
		"product_id":   req.ProductID,
		"product_name": req.ProductName,
		"full_name":    req.FullName,
		"department":   req.Department,
		"company_name": req.CompanyName,
		"co_reg_no":    req.CoRegNo,
		"tin_no":       req.TINNo,
		"email":        req.Email,
		"tel_no":       req.TelNo,
		"address":      req.Address,
	}
	if user, ok := s.currentUser(); ok {
		payload["user_id"] = user.ID
	}

	if err := s.events.Record(ctx, events.TypeQuotationRequested, events.AggregateQuotation, id, payload); err != nil {
		return "", err
	}

	s.logger.WithFields(log.Fields{
		"quotation_id": id,
		"product_id":   req.ProductID,
	}).Info("quotation requested")
	return id, nil
}

func normalizeQuotation(in domain.QuotationRequest) domain.QuotationRequest {
	for _, field := range []*string{
		&in.ProductID, &in.ProductName, &in.FullName, &in.Department, &in.CompanyName,
		&in.CoRegNo, &in.TINNo, &in.Email, &in.TelNo, &in.Address,
	} {
		*field = strings.TrimSpace(*field)
	}
	return in
}
