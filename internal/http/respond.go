package http

import "github.com/gin-gonic/gin"

// respondData envia la envoltura exitosa con datos.
func respondData(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

// respondMessage envia la envoltura exitosa con un mensaje.
func respondMessage(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": true, "message": message})
}

// respondError envia la envoltura de error. El detalle interno solo se incluye
// fuera de produccion.
func respondError(c *gin.Context, status int, message string, detail error, exposeDetail bool) {
	body := gin.H{"success": false, "message": message}
	if exposeDetail && detail != nil {
		body["error"] = detail.Error()
	}
	c.JSON(status, body)
}
