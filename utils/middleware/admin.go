package middleware

import (
	"encoding/json"
	"log"
	"strconv"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// auditSnapshots loads the current state of a resource before it is changed
var auditSnapshots = map[string]func(db *gorm.DB, id uint) (interface{}, error){
	"users": func(db *gorm.DB, id uint) (interface{}, error) {
		var u model.User
		err := db.First(&u, id).Error
		return u, err
	},
	"settings": func(db *gorm.DB, id uint) (interface{}, error) {
		var s model.AppSetting
		err := db.First(&s, id).Error
		return s, err
	},
	"universities": func(db *gorm.DB, id uint) (interface{}, error) {
		var u model.University
		err := db.First(&u, id).Error
		return u, err
	},
	"dead_letters": func(db *gorm.DB, id uint) (interface{}, error) {
		var d model.OutboxDeadLetter
		err := db.First(&d, id).Error
		return d, err
	},
}

// AdminAuditLog records an audit entry for admin actions. It must run after
// an auth middleware that stored the acting user.
func AdminAuditLog(db *gorm.DB, action, resource string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		admin, ok := GetUser(c)
		if !ok {
			return c.Next() // Continue without logging if user not found
		}

		var resourceID uint
		if id := c.Params("id"); id != "" {
			if parsedID, err := strconv.ParseUint(id, 10, 32); err == nil {
				resourceID = uint(parsedID)
			}
		}

		var oldValue, newValue []byte

		if c.Method() == fiber.MethodPut || c.Method() == fiber.MethodDelete {
			if load, ok := auditSnapshots[resource]; ok && resourceID > 0 {
				if snapshot, err := load(db, resourceID); err == nil {
					oldValue, _ = json.Marshal(snapshot)
				}
			} else if key := c.Params("key"); key != "" && resource == "settings" {
				// settings are addressed by key
				var s model.AppSetting
				if err := db.Where("key = ?", key).First(&s).Error; err == nil {
					resourceID = s.ID
					oldValue, _ = json.Marshal(s)
				}
			}
		}

		if c.Method() == fiber.MethodPost || c.Method() == fiber.MethodPut {
			if body := c.Body(); len(body) > 0 && json.Valid(body) {
				newValue = append([]byte(nil), body...)
			}
		}

		err := c.Next()

		// Copy everything out of the fiber context before it is recycled
		entry := model.AdminAuditLog{
			AdminID:     admin.ID,
			Action:      action,
			Resource:    resource,
			ResourceID:  resourceID,
			OldValue:    datatypes.JSON(oldValue),
			NewValue:    datatypes.JSON(redactSecrets(newValue)),
			StatusCode:  c.Response().StatusCode(),
			IPAddress:   c.IP(),
			UserAgent:   c.Get(fiber.HeaderUserAgent),
			Description: c.Method() + " " + c.Path(),
		}
		if rid, ok := c.Locals("requestid").(string); ok {
			entry.RequestID = rid
		}

		go func() {
			if createErr := db.Create(&entry).Error; createErr != nil {
				log.Printf("[AUDIT] failed to record %s on %s: %v", action, resource, createErr)
			}
		}()

		return err
	}
}

// redactSecrets blanks password fields in a JSON object body
func redactSecrets(body []byte) []byte {
	if len(body) == 0 {
		return nil
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(body, &obj); err != nil {
		return body
	}
	for _, key := range []string{"password", "new_password", "old_password"} {
		if _, ok := obj[key]; ok {
			obj[key] = "[REDACTED]"
		}
	}
	out, err := json.Marshal(obj)
	if err != nil {
		return body
	}
	return out
}
