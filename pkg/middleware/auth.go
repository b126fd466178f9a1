package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"food-delivery/internal/entities"
	apperrors "food-delivery/pkg/errors"
	"food-delivery/pkg/service"
	"food-delivery/pkg/utils"
)

type AuthMiddleware struct {
	jwtService service.JWTService
	logger     *zap.Logger
}

func NewAuthMiddleware(jwtSvc service.JWTService, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService: jwtSvc,
		logger:     logger,
	}
}

// Auth проверяет Bearer-токен и кладёт участника (роль + ID) в контекст запроса.
func (m *AuthMiddleware) Auth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if authHeader == "" {
			m.logger.Warn("AuthMiddleware: Пустой заголовок Authorization")
			return utils.ErrorResponse(c, apperrors.ErrEmptyAuthHeader, m.logger)
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			m.logger.Warn("AuthMiddleware: Неверный формат заголовка Authorization")
			return utils.ErrorResponse(c, apperrors.ErrInvalidAuthHeader, m.logger)
		}

		actor, err := m.ActorFromToken(parts[1])
		if err != nil {
			m.logger.Warn("AuthMiddleware: Ошибка валидации токена", zap.Error(err))
			return utils.ErrorResponse(c, err, m.logger)
		}

		c.SetRequest(c.Request().WithContext(utils.WithActor(c.Request().Context(), actor)))
		return next(c)
	}
}

// ActorFromToken используется и для WebSocket, где токен приходит в query.
func (m *AuthMiddleware) ActorFromToken(token string) (entities.Actor, error) {
	claims, err := m.jwtService.ValidateToken(token)
	if err != nil {
		return entities.Actor{}, err
	}
	role := entities.ActorRole(claims.Role)
	if !role.IsValid() {
		return entities.Actor{}, apperrors.ErrInvalidToken
	}
	return entities.Actor{Role: role, ID: claims.Subject}, nil
}

// RequireRole пропускает только перечисленные роли.
func (m *AuthMiddleware) RequireRole(roles ...entities.ActorRole) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor, err := utils.GetActorFromCtx(c.Request().Context())
			if err != nil {
				return utils.ErrorResponse(c, apperrors.ErrUnauthorized, m.logger)
			}
			for _, r := range roles {
				if actor.Role == r {
					return next(c)
				}
			}
			m.logger.Warn("RequireRole: роль не допускается",
				zap.String("role", string(actor.Role)),
				zap.String("path", c.Path()))
			return utils.ErrorResponse(c, apperrors.ErrForbidden, m.logger)
		}
	}
}

