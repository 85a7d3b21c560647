package app

// OpenAPISpec is the OpenAPI document served at /docs/openapi.yaml.
var OpenAPISpec = []byte(`openapi: 3.0.3
info:
  title: PostPilot Automation API
  description: Control surface for the media publication orchestrator.
  version: 1.0.0
servers:
  - url: /api/v1
paths:
  /orchestrator/start:
    post:
      summary: Start the orchestrator
      responses:
        "200":
          description: Orchestrator started
        "409":
          description: Already running
  /orchestrator/stop:
    post:
      summary: Stop the orchestrator, releasing all sessions
      responses:
        "200":
          description: Orchestrator stopped
        "409":
          description: Not running
  /orchestrator/pause:
    post:
      summary: Pause scheduling without tearing down warm sessions
      responses:
        "200":
          description: Paused
  /orchestrator/resume:
    post:
      summary: Resume scheduling after a pause
      responses:
        "200":
          description: Resumed
  /orchestrator/status:
    get:
      summary: Orchestrator status snapshot
      responses:
        "200":
          description: Status
          content:
            application/json:
              schema:
                $ref: "#/components/schemas/Status"
  /orchestrator/settings:
    put:
      summary: Update orchestrator settings
      requestBody:
        content:
          application/json:
            schema:
              $ref: "#/components/schemas/Settings"
      responses:
        "204":
          description: Settings applied
        "400":
          description: Invalid settings
        "409":
          description: Session cap cannot change while sessions are active
  /orchestrator/health/{dep}/reset:
    post:
      summary: Reset a dependency health circuit
      parameters:
        - name: dep
          in: path
          required: true
          schema:
            type: string
            enum: [profile-provider, media-store, publisher]
      responses:
        "204":
          description: Circuit reset
        "404":
          description: Unknown dependency
  /accounts:
    get:
      summary: List schedulable accounts
      responses:
        "200":
          description: Account list
  /accounts/{id}:
    get:
      summary: Get an account
      parameters:
        - $ref: "#/components/parameters/AccountID"
      responses:
        "200":
          description: Account
        "404":
          description: Account not found
  /accounts/{id}/run:
    post:
      summary: Start scheduling posts for the account
      description: Provisions a browser profile first when the account has none.
      parameters:
        - $ref: "#/components/parameters/AccountID"
      responses:
        "200":
          description: Account running
        "404":
          description: Account not found
        "409":
          description: Account banned or not activatable
        "503":
          description: Profile provider unavailable
  /accounts/{id}/halt:
    post:
      summary: Stop scheduling posts for the account
      parameters:
        - $ref: "#/components/parameters/AccountID"
      responses:
        "200":
          description: Account halted
        "404":
          description: Account not found
  /media/upload:
    post:
      summary: Upload a media object
      requestBody:
        content:
          multipart/form-data:
            schema:
              type: object
              properties:
                file:
                  type: string
                  format: binary
      responses:
        "201":
          description: Media stored, returns the media_ref posts carry
        "400":
          description: Missing file or unsupported media type
components:
  parameters:
    AccountID:
      name: id
      in: path
      required: true
      schema:
        type: string
  schemas:
    Status:
      type: object
      properties:
        running:
          type: boolean
        paused:
          type: boolean
        active_accounts:
          type: integer
        active_sessions:
          type: integer
        queue_depth:
          type: integer
        health_scores:
          type: object
          additionalProperties:
            type: integer
        recent_events:
          type: array
          items:
            type: object
    Settings:
      type: object
      properties:
        max_concurrent_sessions:
          type: integer
        max_posts_per_day:
          type: integer
        min_delay_seconds:
          type: integer
        max_delay_seconds:
          type: integer
        working_hours:
          type: object
          properties:
            start_hour:
              type: integer
            end_hour:
              type: integer
            timezone:
              type: string
`)
