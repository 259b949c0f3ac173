package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/akmonengine/ballista"
	"github.com/akmonengine/ballista/actor"
	"github.com/go-gl/mathgl/mgl64"
)

// Drops a stack of boxes and a ball onto the ground and prints where they settle.
func main() {
	configPath := flag.String("config", "", "world configuration (.toml or .yaml)")
	steps := flag.Int("steps", 300, "number of fixed steps")
	boxes := flag.Int("boxes", 5, "boxes in the stack")
	flag.Parse()

	cfg := ballista.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = ballista.LoadConfig(*configPath); err != nil {
			log.Fatal(err)
		}
	}
	world, err := ballista.NewWorld(cfg)
	if err != nil {
		log.Fatal(err)
	}

	groundBody, err := actor.NewRigidBody(actor.NewTransform(), 0, actor.BodyTypeStatic)
	if err != nil {
		log.Fatal(err)
	}
	if _, err := groundBody.AddShape(actor.NewPlane(), mgl64.Vec3{}, mgl64.QuatIdent()); err != nil {
		log.Fatal(err)
	}
	if err := world.AddBody(groundBody); err != nil {
		log.Fatal(err)
	}

	stack := make([]*actor.RigidBody, 0, *boxes)
	for i := 0; i < *boxes; i++ {
		body, err := actor.NewRigidBody(actor.Transform{Position: mgl64.Vec3{0, 0, 0.5 + float64(i)*1.05}, Rotation: mgl64.QuatIdent()}, 1, actor.BodyTypeDynamic)
		if err != nil {
			log.Fatal(err)
		}
		box, err := actor.NewBox(mgl64.Vec3{0.5, 0.5, 0.5})
		if err != nil {
			log.Fatal(err)
		}
		if _, err := body.AddShape(box, mgl64.Vec3{}, mgl64.QuatIdent()); err != nil {
			log.Fatal(err)
		}
		if err := world.AddBody(body); err != nil {
			log.Fatal(err)
		}
		stack = append(stack, body)
	}

	ball, err := actor.NewRigidBody(actor.Transform{Position: mgl64.Vec3{3, 0, 4}, Rotation: mgl64.QuatIdent()}, 2, actor.BodyTypeDynamic)
	if err != nil {
		log.Fatal(err)
	}
	sphere, err := actor.NewSphere(0.5)
	if err != nil {
		log.Fatal(err)
	}
	if _, err := ball.AddShape(sphere, mgl64.Vec3{}, mgl64.QuatIdent()); err != nil {
		log.Fatal(err)
	}
	ball.Velocity = mgl64.Vec3{-4, 0, 0}
	if err := world.AddBody(ball); err != nil {
		log.Fatal(err)
	}

	world.Events.Subscribe(ballista.BEGIN_CONTACT, func(event ballista.Event) {
		e := event.(ballista.BeginContactEvent)
		fmt.Printf("t=%.3fs contact begins between %d and %d\n", world.Time, e.BodyA.ID, e.BodyB.ID)
	})
	world.Events.Subscribe(ballista.SLEEP, func(event ballista.Event) {
		fmt.Printf("t=%.3fs body %d fell asleep\n", world.Time, event.(ballista.SleepEvent).Body.ID)
	})

	const dt = 1.0 / 60.0
	for i := 0; i < *steps; i++ {
		if err := world.Step(dt); err != nil {
			log.Fatal(err)
		}
	}

	for i, body := range stack {
		p := body.Transform.Position
		fmt.Printf("box %d: (%.3f, %.3f, %.3f)\n", i, p.X(), p.Y(), p.Z())
	}
	p := ball.Transform.Position
	fmt.Printf("ball: (%.3f, %.3f, %.3f)\n", p.X(), p.Y(), p.Z())
}
