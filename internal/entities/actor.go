package entities

type ActorRole string

const (
	RoleCustomer   ActorRole = "customer"
	RoleRestaurant ActorRole = "restaurant"
	RoleAgent      ActorRole = "agent"
	RoleAdmin      ActorRole = "admin"
)

func (r ActorRole) IsValid() bool {
	switch r {
	case RoleCustomer, RoleRestaurant, RoleAgent, RoleAdmin:
		return true
	}
	return false
}

// Actor - аутентифицированный участник запроса. Для ресторана ID совпадает
// с идентификатором ресторана.
type Actor struct {
	Role ActorRole `json:"role"`
	ID   string    `json:"id"`
}
