package domain

import "time"

// Address — адрес из адресной книги пользователя.
type Address struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Address1  string `json:"address1"`
	Address2  string `json:"address2,omitempty"`
	City      string `json:"city"`
	State     string `json:"state"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
	IsPrimary bool   `json:"is_primary"`
}

// AddressInput — тело создания/обновления адреса.
type AddressInput struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Phone     string `json:"phone" validate:"required"`
	Address1  string `json:"address1" validate:"required"`
	Address2  string `json:"address2,omitempty"`
	City      string `json:"city" validate:"required"`
	State     string `json:"state" validate:"required"`
	Postcode  string `json:"postcode" validate:"required"`
	Country   string `json:"country" validate:"required"`
	IsPrimary bool   `json:"is_primary"`
}

// ToOrderAddress переводит адрес из книги в снимок для заказа.
func (a Address) ToOrderAddress() OrderAddress {
	return OrderAddress{
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Phone:     a.Phone,
		Address1:  a.Address1,
		Address2:  a.Address2,
		City:      a.City,
		State:     a.State,
		Postcode:  a.Postcode,
		Country:   a.Country,
	}
}

// UserType — категория покупателя; от неё зависит набор обязательных полей профиля.
type UserType string

const (
	UserTypeBasic      UserType = "Basic"
	UserTypeAgent      UserType = "Agent"
	UserTypeHealthcare UserType = "Healthcare"
	UserTypeAdmin      UserType = "Admin"
)

// User — профиль авторизованного пользователя.
type User struct {
	ID               string   `json:"id"`
	Email            string   `json:"email"`
	FirstName        string   `json:"firstName"`
	LastName         string   `json:"lastName,omitempty"`
	UserType         UserType `json:"userType"`
	Gender           string   `json:"gender,omitempty"`
	DateOfBirth      string   `json:"dateOfBirth,omitempty"`
	ICNo             string   `json:"icNo,omitempty"`
	HPNo             string   `json:"hpNo,omitempty"`
	HospitalName     string   `json:"hospitalName,omitempty"`
	Department       string   `json:"department,omitempty"`
	Position         string   `json:"position,omitempty"`
	CompanyName      string   `json:"companyName,omitempty"`
	CompanyAddress   string   `json:"companyAddress,omitempty"`
	CoRegNo          string   `json:"coRegNo,omitempty"`
	CoEmailAddress   string   `json:"coEmailAddress,omitempty"`
	TINNo            string   `json:"tinNo,omitempty"`
	PICEinvoice      string   `json:"picEinvoice,omitempty"`
	PICEinvoiceEmail string   `json:"picEinvoiceEmail,omitempty"`
	PICEinvoiceTelNo string   `json:"picEinvoiceTelNo,omitempty"`
}

// ProfileField — незаполненное поле профиля.
type ProfileField struct {
	Name  string
	Label string
}

// IncompleteFields возвращает поля профиля, которые пользователь ещё не заполнил.
// Набор зависит от типа пользователя.
func (u User) IncompleteFields() []ProfileField {
	var fields []ProfileField
	add := func(value, name, label string) {
		if value == "" {
			fields = append(fields, ProfileField{Name: name, Label: label})
		}
	}

	add(u.LastName, "lastName", "Last Name")
	add(u.HPNo, "hpNo", "HP No")
	add(u.Gender, "gender", "Gender")
	add(u.DateOfBirth, "dateOfBirth", "Date of Birth")

	switch u.UserType {
	case UserTypeHealthcare:
		add(u.ICNo, "icNo", "IC No")
		add(u.HospitalName, "hospitalName", "Hospital Name")
		add(u.Department, "department", "Department")
		add(u.Position, "position", "Position")
	case UserTypeAgent:
		add(u.ICNo, "icNo", "IC No")
		add(u.CompanyName, "companyName", "Company Name")
		add(u.CompanyAddress, "companyAddress", "Company Address")
		add(u.CoRegNo, "coRegNo", "Co Reg No")
		add(u.CoEmailAddress, "coEmailAddress", "Co Email Address")
		add(u.TINNo, "tinNo", "TIN No")
		add(u.PICEinvoice, "picEinvoice", "PIC of E-invoice")
		add(u.PICEinvoiceEmail, "picEinvoiceEmail", "PIC of E-invoice Email")
		add(u.PICEinvoiceTelNo, "picEinvoiceTelNo", "PIC of E-invoice Tel No")
	}

	return fields
}

// ProfileUpdate — частичное обновление профиля (PATCH /users/me). Пустые поля не отправляются.
type ProfileUpdate map[string]string

// Voucher — ваучер, доступный пользователю.
type Voucher struct {
	ID           string     `json:"id"`
	Code         string     `json:"code"`
	DiscountType string     `json:"discount_type"`
	Amount       float64    `json:"amount"`
	MinQuantity  int        `json:"min_quantity"`
	PerUnit      bool       `json:"per_unit"`
	Scope        string     `json:"scope,omitempty"`
	IsActive     bool       `json:"is_active"`
	ValidFrom    *time.Time `json:"valid_from,omitempty"`
	ValidTo      *time.Time `json:"valid_to,omitempty"`
}

// Usable сообщает, что ваучер активен и не истёк на момент now.
func (v Voucher) Usable(now time.Time) bool {
	if !v.IsActive {
		return false
	}
	if v.ValidFrom != nil && now.Before(*v.ValidFrom) {
		return false
	}
	return v.ValidTo == nil || now.Before(*v.ValidTo)
}

// QuotationRequest — запрос коммерческого предложения по товару.
type QuotationRequest struct {
	ProductID   string `json:"productId" validate:"required"`
	ProductName string `json:"productName" validate:"required"`
	FullName    string `json:"fullName" validate:"required"`
	Department  string `json:"department" validate:"required"`
	CompanyName string `json:"companyName" validate:"required"`
	CoRegNo     string `json:"coRegNo,omitempty"`
	TINNo       string `json:"tinNo,omitempty"`
	Email       string `json:"email" validate:"required,email"`
	TelNo       string `json:"telNo" validate:"required"`
	Address     string `json:"address" validate:"required"`
}
